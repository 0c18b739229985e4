package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/orels1/api.v3.cogs.red/internal/registry/models"
	"github.com/orels1/api.v3.cogs.red/internal/registry/store"
	"github.com/orels1/api.v3.cogs.red/internal/registry/validate"
)

// Validate is the manual validation entry point: it fetches and validates a
// repository without writing anything, so callers can preview diagnostics
// before registering.
type Validate struct {
	pipeline Pipeline
}

// NewValidate creates the manual validation handler.
func NewValidate(pipeline Pipeline) *Validate {
	return &Validate{pipeline: pipeline}
}

type validateResponse struct {
	Errors []validate.Diagnostic `json:"errors"`
	Result validate.Result       `json:"result"`
}

// ServeHTTP handles a validation preview request.
func (h *Validate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch := pathParams(r)

	result, err := h.pipeline.Preview(r.Context(), owner, repo, branch)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		slog.Error("Validation preview failed", "owner", owner, "repo", repo, "branch", branch, "err", err)
		return
	}

	diags := result.Diagnostics
	if diags == nil {
		diags = []validate.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, validateResponse{Errors: diags, Result: result})
}

// Register registers a repository branch (or re-syncs an already registered
// one) by running a full pipeline pass.
type Register struct {
	pipeline Pipeline
}

// NewRegister creates the registration handler.
func NewRegister(pipeline Pipeline) *Register {
	return &Register{pipeline: pipeline}
}

type registerResponse struct {
	Repo   *models.Repository `json:"repo"`
	Cogs   []models.Cog       `json:"cogs"`
	Failed []string           `json:"failed,omitempty"`
}

// ServeHTTP handles a registration request.
func (h *Register) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch := pathParams(r)

	result, err := h.pipeline.Sync(r.Context(), owner, repo, branch)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Could not save repo "+repo)
		slog.Error("Registration sync failed", "owner", owner, "repo", repo, "branch", branch, "err", err)
		return
	}

	resp := registerResponse{Repo: result.Repository, Cogs: []models.Cog{}, Failed: result.Failed()}
	for _, outcome := range result.Cogs {
		if outcome.Err == nil {
			resp.Cogs = append(resp.Cogs, *outcome.Cog)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Approve sets the approval state of a repository and propagates it to its
// cogs.
type Approve struct {
	panel Panel
}

// NewApprove creates the approval handler.
func NewApprove(panel Panel) *Approve {
	return &Approve{panel: panel}
}

// ServeHTTP handles an approval state change.
func (h *Approve) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch := pathParams(r)

	var body struct {
		Approved string `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approved == "" {
		writeError(w, http.StatusBadRequest, "Missing approval state")
		return
	}

	updated, cogs, err := h.panel.Approve(r.Context(), owner, repo, branch, body.Approved)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "Repo does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Could not update repo")
		slog.Error("Approval update failed", "owner", owner, "repo", repo, "branch", branch, "err", err)
		return
	}

	writeJSON(w, http.StatusOK, propagationResponse{Success: true, Repo: updated, Cogs: cogs})
}

// Hide sets the visibility flag of a repository and propagates it to its
// cogs.
type Hide struct {
	panel Panel
}

// NewHide creates the visibility handler.
func NewHide(panel Panel) *Hide {
	return &Hide{panel: panel}
}

// ServeHTTP handles a visibility change.
func (h *Hide) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch := pathParams(r)

	var body struct {
		State bool `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Missing visibility state")
		return
	}

	updated, cogs, err := h.panel.SetHidden(r.Context(), owner, repo, branch, body.State)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "Repo does not exist")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Could not update repo")
		slog.Error("Visibility update failed", "owner", owner, "repo", repo, "branch", branch, "err", err)
		return
	}

	writeJSON(w, http.StatusOK, propagationResponse{Success: true, Repo: updated, Cogs: cogs})
}

type propagationResponse struct {
	Success bool               `json:"success"`
	Repo    *models.Repository `json:"repo"`
	Cogs    []string           `json:"cogs"`
}

func pathParams(r *http.Request) (owner, repo, branch string) {
	return r.PathValue("owner"), r.PathValue("repo"), r.PathValue("branch")
}
