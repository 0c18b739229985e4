package handlers

import (
	"net/http"

	"github.com/orels1/api.v3.cogs.red/internal/constants"
)

// Version reports the running service version.
type Version struct{}

// ServeHTTP handles a version request.
func (Version) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": constants.Version})
}
