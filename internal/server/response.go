package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wesm/repo-pulse/internal/api"
	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/session"
	"github.com/wesm/repo-pulse/internal/state"
)

type envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	RateLimit *rateLimitPayload `json:"rateLimit,omitempty"`
}

type rateLimitPayload struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondData(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Error: message})
}

// respondFailure maps an error from the core onto a status code
func respondFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *models.ValidationError
	var rateErr *api.RateLimitError

	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, api.ErrAuth), errors.Is(err, session.ErrNoSession):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, api.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, state.ErrNoRepository):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rateErr):
		respondJSON(w, http.StatusTooManyRequests, envelope{
			Error:     err.Error(),
			RateLimit: &rateLimitPayload{Remaining: rateErr.Remaining, ResetAt: rateErr.ResetTime},
		})
	default:
		logger.Warn("request failed", "err", err)
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Message: "invalid request body"}
	}
	return nil
}
