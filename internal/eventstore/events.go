package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Event type names.
const (
	TypeBuildStarted   = "BuildStarted"
	TypeStageCompleted = "StageCompleted"
	TypeBuildCompleted = "BuildCompleted"
	TypeBuildFailed    = "BuildFailed"
)

// BuildStartedData is the payload of a BuildStarted event.
type BuildStartedData struct {
	Repository   string   `json:"repository"`
	Branch       string   `json:"branch"`
	Authenticate bool     `json:"authenticate"`
	Certificates []string `json:"certificates,omitempty"`
}

// StageCompletedData is the payload of a StageCompleted event.
type StageCompletedData struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

// BuildCompletedData is the payload of a BuildCompleted event.
type BuildCompletedData struct {
	Artifact    string   `json:"artifact"`
	ArtifactURL string   `json:"artifact_url,omitempty"`
	Files       []string `json:"files"`
	Commit      string   `json:"commit,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Warnings    []string `json:"warnings,omitempty"`
}

// BuildFailedData is the payload of a BuildFailed event.
type BuildFailedData struct {
	Stage      string `json:"stage"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

// BuildStarted is emitted once a build has been accepted and its id assigned.
type BuildStarted struct {
	BaseEvent
	Data BuildStartedData
}

// StageCompleted is emitted after each successful stage.
type StageCompleted struct {
	BaseEvent
	Data StageCompletedData
}

// BuildCompleted is emitted when an archive has been produced.
type BuildCompleted struct {
	BaseEvent
	Data BuildCompletedData
}

// BuildFailed is emitted when a stage aborts the build.
type BuildFailed struct {
	BaseEvent
	Data BuildFailedData
}

func newBase(buildID, device, eventType string, data any) (BaseEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return BaseEvent{}, wrap(ErrMarshalPayloadFailed, err)
	}
	return BaseEvent{
		EventBuildID:   buildID,
		EventDevice:    device,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}, nil
}

// NewBuildStarted creates a BuildStarted event.
func NewBuildStarted(buildID, device string, data BuildStartedData) (*BuildStarted, error) {
	base, err := newBase(buildID, device, TypeBuildStarted, data)
	if err != nil {
		return nil, err
	}
	return &BuildStarted{BaseEvent: base, Data: data}, nil
}

// NewStageCompleted creates a StageCompleted event.
func NewStageCompleted(buildID, device, stage string, duration time.Duration) (*StageCompleted, error) {
	data := StageCompletedData{Stage: stage, DurationMS: duration.Milliseconds()}
	base, err := newBase(buildID, device, TypeStageCompleted, data)
	if err != nil {
		return nil, err
	}
	return &StageCompleted{BaseEvent: base, Data: data}, nil
}

// NewBuildCompleted creates a BuildCompleted event.
func NewBuildCompleted(buildID, device string, data BuildCompletedData) (*BuildCompleted, error) {
	base, err := newBase(buildID, device, TypeBuildCompleted, data)
	if err != nil {
		return nil, err
	}
	return &BuildCompleted{BaseEvent: base, Data: data}, nil
}

// NewBuildFailed creates a BuildFailed event.
func NewBuildFailed(buildID, device string, data BuildFailedData) (*BuildFailed, error) {
	base, err := newBase(buildID, device, TypeBuildFailed, data)
	if err != nil {
		return nil, err
	}
	return &BuildFailed{BaseEvent: base, Data: data}, nil
}

// Decode unmarshals the payload of e into v.
func Decode(e Event, v any) error {
	if err := json.Unmarshal(e.Payload(), v); err != nil {
		return errors.EventStoreError("failed to unmarshal event payload").
			WithCause(err).
			WithContext("build_id", e.BuildID()).
			WithContext("type", e.Type()).
			Build()
	}
	return nil
}
