// Package server exposes the dashboard core as a JSON HTTP API
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/repo-pulse/internal/logging"
	"github.com/wesm/repo-pulse/internal/session"
	"github.com/wesm/repo-pulse/internal/settings"
)

// Server serves the JSON API for the current session
type Server struct {
	sessions *session.Manager
	settings *settings.Store
	logger   *slog.Logger
}

// New creates a server over a session manager and the settings store
func New(sessions *session.Manager, prefs *settings.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		sessions: sessions,
		settings: prefs,
		logger:   logger,
	}
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.Login)
		r.Delete("/session", s.Logout)

		r.Get("/repository", s.GetRepository)
		r.Post("/repository", s.SelectRepository)
		r.Post("/repository/refresh", s.RefreshRepository)
		r.Delete("/repository", s.ClearRepository)

		r.Post("/releases", s.CreateRelease)
		r.Patch("/releases/{id}/phase", s.SetReleasePhase)

		r.Post("/issues/{number}/labels", s.AddLabel)
		r.Delete("/issues/{number}/labels/{label}", s.RemoveLabel)

		r.Get("/review-statuses", s.GetReviewStatuses)
		r.Get("/issue-types", s.GetIssueTypes)

		r.Get("/workflows", s.GetWorkflows)
		r.Get("/workflows/runs", s.GetWorkflowRuns)

		r.Get("/rate-limit", s.GetRateLimit)

		r.Get("/settings", s.GetSettings)
		r.Put("/settings", s.UpdateSettings)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
