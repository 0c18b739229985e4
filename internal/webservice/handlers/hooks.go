package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/orels1/api.v3.cogs.red/internal/registry/hooks"
)

// Signature and event type headers sent by the source host.
const (
	signatureHeader = "X-Hub-Signature"
	eventHeader     = "X-GitHub-Event"
)

// Hook receives push notifications for a registered repository branch.
type Hook struct {
	reconciler Reconciler
	maxBytes   int64
}

// NewHook creates the change event intake handler.
func NewHook(reconciler Reconciler, maxBytes int64) *Hook {
	return &Hook{reconciler: reconciler, maxBytes: maxBytes}
}

// ServeHTTP handles one change event delivery.
func (h *Hook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	params := hooks.Params{
		Owner:  r.PathValue("owner"),
		Repo:   r.PathValue("repo"),
		Branch: r.PathValue("branch"),
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		slog.Error("Error reading event payload", "req_id", reqID, "err", err)
		return
	}

	action, err := h.reconciler.HandleEvent(r.Context(), params,
		r.Header.Get(eventHeader), r.Header.Get(signatureHeader), payload)
	if errors.Is(err, hooks.ErrSignatureMismatch) {
		writeError(w, http.StatusUnauthorized, "Hash mismatch")
		slog.Warn("Rejected change event", "req_id", reqID, "owner", params.Owner, "repo", params.Repo)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Could not process event")
		slog.Error("Failed to process change event", "req_id", reqID, "owner", params.Owner, "repo", params.Repo, "err", err)
		return
	}

	slog.Info("Change event handled", "req_id", reqID, "owner", params.Owner, "repo", params.Repo, "branch", params.Branch, "action", action.String())
	writeJSON(w, http.StatusOK, map[string]string{"action": action.String()})
}
