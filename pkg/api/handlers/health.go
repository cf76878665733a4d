// Package handlers implements the HTTP handlers of the poll server.
package handlers

import (
	"net/http"

	"github.com/marmos91/vxi11/internal/poller"
)

// StatusSource reports the state of the instrument being polled.
// *poller.Poller implements it.
type StatusSource interface {
	Status() poller.Status
}

// HealthHandler handles the /health endpoints.
type HealthHandler struct {
	source StatusSource
}

// NewHealthHandler creates a health handler. source may be nil, in which
// case readiness always fails.
func NewHealthHandler(source StatusSource) *HealthHandler {
	return &HealthHandler{source: source}
}

// Liveness handles GET /health. It succeeds as long as the process serves
// HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "vxi11ctl",
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 503 until the first successful poll, while the link is down, and
// after a failed poll.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("poller not initialized", nil))
		return
	}

	st := h.source.Status()
	switch {
	case !st.Linked:
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("instrument not linked", st))
	case st.LastError != "":
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(st.LastError, st))
	case st.LastSuccess.IsZero():
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no successful poll yet", st))
	default:
		writeJSON(w, http.StatusOK, healthyResponse(st))
	}
}

// Instrument handles GET /health/instrument and always returns the poller
// status with 200.
func (h *HealthHandler) Instrument(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("poller not initialized", nil))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(h.source.Status()))
}
