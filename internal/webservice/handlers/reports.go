package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/orels1/api.v3.cogs.red/internal/registry/panel"
	"github.com/orels1/api.v3.cogs.red/internal/registry/store"
)

// Report files an abuse report against a single cog. Reports are keyed by
// the client address so the same caller cannot stack live reports on one cog.
type Report struct {
	panel Panel
}

// NewReport creates the abuse report handler.
func NewReport(panel Panel) *Report {
	return &Report{panel: panel}
}

type reportRequest struct {
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// ServeHTTP handles an abuse report submission.
func (h *Report) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, repo, branch := pathParams(r)
	cog := r.PathValue("cog")

	var body reportRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Type == "" {
		writeError(w, http.StatusBadRequest, "Missing report type")
		return
	}

	err := h.panel.AddReport(r.Context(), owner, repo, branch, cog, body.Type, clientIP(r), body.Comment)
	switch {
	case errors.Is(err, panel.ErrUnknownReportType):
		writeError(w, http.StatusBadRequest, "Report type must be one of "+strings.Join(panel.ReportTypes, ", "))
	case errors.Is(err, panel.ErrAlreadyReported):
		writeError(w, http.StatusBadRequest, "You already reported this cog")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Cog does not exist")
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "Could not save report")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"cog":  cog,
			"type": body.Type,
		})
	}
}

// clientIP returns the first address of X-Forwarded-For when present, the
// peer address otherwise.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
