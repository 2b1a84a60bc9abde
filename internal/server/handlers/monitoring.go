package handlers

import (
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/server/responses"
	"git.home.luguber.info/inful/fwbuilder/internal/version"
)

// MonitoringHandlers contains monitoring-related HTTP handlers.
type MonitoringHandlers struct {
	startTime    time.Time
	history      History
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates a new monitoring handlers instance. history
// may be nil.
func NewMonitoringHandlers(startTime time.Time, history History, adapter *ferrors.HTTPErrorAdapter) *MonitoringHandlers {
	return &MonitoringHandlers{startTime: startTime, history: history, errorAdapter: adapter}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet) {
		return
	}

	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Resolved(),
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	if h.history != nil {
		health.History = true
		health.Active = len(h.history.Active())
	}

	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write health response").Build())
	}
}
