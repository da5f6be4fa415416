package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wesm/repo-pulse/internal/models"
	"github.com/wesm/repo-pulse/internal/session"
	"github.com/wesm/repo-pulse/internal/state"
)

type loginRequest struct {
	Token string `json:"token"`
}

type selectRequest struct {
	Repository string `json:"repository"`
}

type phaseRequest struct {
	Phase string `json:"phase"`
}

type labelRequest struct {
	Label string `json:"label"`
}

type settingsPayload struct {
	CacheTTLMinutes int  `json:"cacheTtlMinutes"`
	ItemLimit       *int `json:"itemLimit"`
}

// settingsUpdate distinguishes an absent itemLimit from an explicit null
type settingsUpdate struct {
	CacheTTLMinutes *int            `json:"cacheTtlMinutes"`
	ItemLimit       json.RawMessage `json:"itemLimit"`
}

type runsPayload struct {
	Runs    []models.WorkflowRun `json:"runs"`
	Summary models.RunStats      `json:"summary"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	sess, err := s.sessions.Login(r.Context(), req.Token)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, sess.Identity)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, nil)
}

func (s *Server) GetRepository(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, sess.Aggregate.Snapshot())
}

func (s *Server) SelectRepository(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	owner, name, err := state.ParseRepositoryString(req.Repository)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	// a dropped connection must not fail the load for everyone else
	if err := sess.Aggregate.SelectRepository(context.WithoutCancel(r.Context()), owner, name); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, sess.Aggregate.Snapshot())
}

func (s *Server) RefreshRepository(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	if err := sess.Aggregate.Refresh(context.WithoutCancel(r.Context())); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, sess.Aggregate.Snapshot())
}

func (s *Server) ClearRepository(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	sess.Aggregate.Clear()
	respondData(w, sess.Aggregate.Snapshot())
}

func (s *Server) CreateRelease(w http.ResponseWriter, r *http.Request) {
	var input models.ReleaseInput
	if err := decodeBody(r, &input); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	if input.TagName == "" {
		respondFailure(w, s.logger, &models.ValidationError{Field: "tagName", Message: "tag name is required"})
		return
	}

	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	release, err := sess.Aggregate.CreateRelease(r.Context(), input)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{Success: true, Data: release})
}

func (s *Server) SetReleasePhase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondFailure(w, s.logger, &models.ValidationError{Field: "id", Message: "release id must be an integer"})
		return
	}
	var req phaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	phase, err := models.ParsePhase(req.Phase)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	release, err := sess.Aggregate.SetReleasePhase(r.Context(), id, phase)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, release)
}

func (s *Server) AddLabel(w http.ResponseWriter, r *http.Request) {
	number, err := issueNumber(r)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	var req labelRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	labels, err := sess.Aggregate.AddLabel(r.Context(), number, req.Label)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, labels)
}

func (s *Server) RemoveLabel(w http.ResponseWriter, r *http.Request) {
	number, err := issueNumber(r)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	if err := sess.Aggregate.RemoveLabel(r.Context(), number, chi.URLParam(r, "label")); err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, nil)
}

func (s *Server) GetReviewStatuses(w http.ResponseWriter, r *http.Request) {
	sess, owner, name, err := s.target()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	statuses, err := sess.Client.GetPRReviewStatuses(r.Context(), owner, name)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, statuses)
}

func (s *Server) GetIssueTypes(w http.ResponseWriter, r *http.Request) {
	sess, owner, name, err := s.target()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	types, err := sess.Client.GetIssueTypes(r.Context(), owner, name)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, types)
}

func (s *Server) GetWorkflows(w http.ResponseWriter, r *http.Request) {
	sess, owner, name, err := s.target()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	workflows, err := sess.Client.GetWorkflows(r.Context(), owner, name)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, workflows)
}

func (s *Server) GetWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	var workflowID int64
	if raw := r.URL.Query().Get("workflow_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			respondFailure(w, s.logger, &models.ValidationError{Field: "workflow_id", Message: "workflow_id must be a positive integer"})
			return
		}
		workflowID = id
	}

	sess, owner, name, err := s.target()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	runs, err := sess.Client.GetWorkflowRuns(r.Context(), owner, name, workflowID)
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, runsPayload{Runs: runs, Summary: models.SummarizeRuns(runs)})
}

func (s *Server) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	limit, err := sess.Client.GetRateLimit(r.Context())
	if err != nil {
		respondFailure(w, s.logger, err)
		return
	}
	respondData(w, limit)
}

func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondData(w, settingsPayload{
		CacheTTLMinutes: s.settings.CacheTTLMinutes(),
		ItemLimit:       s.settings.ItemLimit(),
	})
}

func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, s.logger, err)
		return
	}

	if req.CacheTTLMinutes != nil {
		if err := s.settings.SetCacheTTL(*req.CacheTTLMinutes); err != nil {
			respondFailure(w, s.logger, err)
			return
		}
	}
	if len(req.ItemLimit) > 0 {
		var limit *int
		if err := json.Unmarshal(req.ItemLimit, &limit); err != nil {
			respondFailure(w, s.logger, &models.ValidationError{Field: "itemLimit", Message: "itemLimit must be an integer or null"})
			return
		}
		if err := s.settings.SetItemLimit(limit); err != nil {
			respondFailure(w, s.logger, err)
			return
		}
	}

	s.GetSettings(w, r)
}

// target returns the current session and its selected repository
func (s *Server) target() (*session.Session, string, string, error) {
	sess, err := s.sessions.Current()
	if err != nil {
		return nil, "", "", err
	}
	owner, name, ok := sess.Aggregate.Selection()
	if !ok {
		return nil, "", "", state.ErrNoRepository
	}
	return sess, owner, name, nil
}

func issueNumber(r *http.Request) (int, error) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		return 0, &models.ValidationError{Field: "number", Message: "issue number must be a positive integer"}
	}
	return number, nil
}
