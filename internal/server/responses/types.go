// Package responses holds the JSON bodies returned by the HTTP API.
package responses

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime_seconds"`
	History   bool      `json:"history"`
	Active    int       `json:"active_builds"`
}

// BuildListResponse is returned by GET /builds.
type BuildListResponse struct {
	Since  *time.Time                 `json:"since,omitempty"`
	Count  int                        `json:"count"`
	Builds []*eventstore.BuildSummary `json:"builds"`
}

// EventView is the wire form of one recorded lifecycle event.
type EventView struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// BuildEventsResponse is returned by GET /builds/{id}.
type BuildEventsResponse struct {
	Build  *eventstore.BuildSummary `json:"build"`
	Events []EventView              `json:"events"`
}

// NewEventView converts a stored event.
func NewEventView(e eventstore.Event) EventView {
	v := EventView{ID: e.ID(), Type: e.Type(), Timestamp: e.Timestamp()}
	if p := e.Payload(); len(p) > 0 {
		v.Data = json.RawMessage(p)
	}
	return v
}
