package eventstore

import "time"

// Event is a build lifecycle record.
type Event interface {
	// ID returns the store-assigned sequence number (zero before Append).
	ID() int64
	// BuildID returns the build this event belongs to.
	BuildID() string
	// Device returns the device identity the build targets.
	Device() string
	// Type returns the event type name.
	Type() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
	// Payload returns the JSON-encoded event data.
	Payload() []byte
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64     `json:"id"`
	EventBuildID   string    `json:"build_id"`
	EventDevice    string    `json:"device"`
	EventType      string    `json:"type"`
	EventTimestamp time.Time `json:"timestamp"`
	EventPayload   []byte    `json:"-"`
}

func (e *BaseEvent) ID() int64            { return e.EventID }
func (e *BaseEvent) BuildID() string      { return e.EventBuildID }
func (e *BaseEvent) Device() string       { return e.EventDevice }
func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte      { return e.EventPayload }

func (e *BaseEvent) setID(id int64) { e.EventID = id }
