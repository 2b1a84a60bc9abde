package handlers

import (
	"context"
	"net/http"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/server/responses"
)

// History is the read side of the build journal.
type History interface {
	Recent() []*eventstore.BuildSummary
	Active() []*eventstore.BuildSummary
	Since(ctx context.Context, since time.Time) ([]*eventstore.BuildSummary, error)
	Summary(ctx context.Context, buildID string) (*eventstore.BuildSummary, bool, error)
	Events(ctx context.Context, buildID string) ([]eventstore.Event, error)
}

// HistoryHandlers serves GET /builds and GET /builds/{id}.
type HistoryHandlers struct {
	history      History
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewHistoryHandlers creates the history handler set. A nil history makes
// every endpoint answer 404.
func NewHistoryHandlers(history History, adapter *ferrors.HTTPErrorAdapter) *HistoryHandlers {
	return &HistoryHandlers{history: history, errorAdapter: adapter}
}

func (h *HistoryHandlers) disabled(w http.ResponseWriter, r *http.Request) bool {
	if h.history != nil {
		return false
	}
	h.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("build history disabled").Build())
	return true
}

// HandleList returns build summaries, newest first. With ?since=<RFC3339> the
// store is queried; otherwise the in-memory projection is returned.
func (h *HistoryHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet) || h.disabled(w, r) {
		return
	}

	resp := responses.BuildListResponse{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, ferrors.ValidationError("since must be an RFC3339 timestamp").
				WithContext("since", raw).
				Build())
			return
		}
		builds, err := h.history.Since(r.Context(), since)
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		resp.Since = &since
		resp.Builds = builds
	} else {
		resp.Builds = h.history.Recent()
	}
	if resp.Builds == nil {
		resp.Builds = []*eventstore.BuildSummary{}
	}
	resp.Count = len(resp.Builds)

	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write build list").Build())
	}
}

// HandleGet returns one build summary together with its raw events.
func (h *HistoryHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet) || h.disabled(w, r) {
		return
	}

	id := r.PathValue("id")
	summary, ok, err := h.history.Summary(r.Context(), id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if !ok {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("build not found").
			WithContext("build_id", id).
			Build())
		return
	}
	events, err := h.history.Events(r.Context(), id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := responses.BuildEventsResponse{Build: summary, Events: make([]responses.EventView, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, responses.NewEventView(e))
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write build events").Build())
	}
}
