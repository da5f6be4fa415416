package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
)

var (
	// ErrAuth is returned when GitHub rejects the credential
	ErrAuth = errors.New("authentication failed")

	// ErrNotAuthenticated is returned for calls made before a successful Authenticate
	ErrNotAuthenticated = fmt.Errorf("%w: not authenticated", ErrAuth)

	// ErrNotFound is returned when a repository or resource does not exist or is not visible
	ErrNotFound = errors.New("not found")
)

// RateLimitError is returned when a call is refused because the rate limit is exhausted
type RateLimitError struct {
	Remaining int
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests remaining, resets at %s",
		e.Remaining, e.ResetTime.Local().Format("15:04:05 MST"))
}

// mapError converts go-github errors into the client's error taxonomy
func (c *GitHubClient) mapError(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		c.recordRate(rateErr.Rate)
		return &RateLimitError{Remaining: rateErr.Rate.Remaining, ResetTime: rateErr.Rate.Reset.Time}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		reset := c.now().Add(time.Minute)
		if abuseErr.RetryAfter != nil {
			reset = c.now().Add(*abuseErr.RetryAfter)
		}
		return &RateLimitError{Remaining: 0, ResetTime: reset}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized:
			c.markUnauthenticated()
			return fmt.Errorf("%w: %s", ErrAuth, respErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, respErr.Message)
		}
	}

	return err
}
