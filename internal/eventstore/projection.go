// Package eventstore records build lifecycle events in SQLite and folds them
// into build summaries.
package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Build statuses reported by summaries.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// BuildSummary is the read model of one build.
type BuildSummary struct {
	BuildID     string     `json:"build_id"`
	Device      string     `json:"device"`
	Status      string     `json:"status"`
	Repository  string     `json:"repository,omitempty"`
	Branch      string     `json:"branch,omitempty"`
	Commit      string     `json:"commit,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
	Stages      []string   `json:"stages,omitempty"`
	FailedStage string     `json:"failed_stage,omitempty"`
	Error       string     `json:"error,omitempty"`
	Artifact    string     `json:"artifact,omitempty"`
	ArtifactURL string     `json:"artifact_url,omitempty"`
	Files       []string   `json:"files,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
}

func (s *BuildSummary) clone() *BuildSummary {
	cp := *s
	cp.Stages = append([]string(nil), s.Stages...)
	cp.Files = append([]string(nil), s.Files...)
	cp.Warnings = append([]string(nil), s.Warnings...)
	return &cp
}

// apply folds one event into the summary. Events with undecodable payloads
// still update status and timestamps.
func (s *BuildSummary) apply(e Event) {
	switch e.Type() {
	case TypeBuildStarted:
		s.StartedAt = e.Timestamp()
		s.Status = StatusRunning
		var d BuildStartedData
		if Decode(e, &d) == nil {
			s.Repository = d.Repository
			s.Branch = d.Branch
		}
	case TypeStageCompleted:
		var d StageCompletedData
		if Decode(e, &d) == nil {
			s.Stages = append(s.Stages, d.Stage)
		}
	case TypeBuildCompleted:
		s.finish(e.Timestamp(), StatusSucceeded)
		var d BuildCompletedData
		if Decode(e, &d) == nil {
			s.Artifact = d.Artifact
			s.ArtifactURL = d.ArtifactURL
			s.Files = d.Files
			s.Commit = d.Commit
			s.Warnings = d.Warnings
			s.DurationMS = d.DurationMS
		}
	case TypeBuildFailed:
		s.finish(e.Timestamp(), StatusFailed)
		var d BuildFailedData
		if Decode(e, &d) == nil {
			s.FailedStage = d.Stage
			s.Error = d.Error
			s.DurationMS = d.DurationMS
		}
	}
}

func (s *BuildSummary) finish(at time.Time, status string) {
	s.CompletedAt = &at
	s.Status = status
	s.DurationMS = at.Sub(s.StartedAt).Milliseconds()
}

// Project folds events into summaries, newest build first.
func Project(events []Event) []*BuildSummary {
	byID := map[string]*BuildSummary{}
	for _, e := range events {
		applyTo(byID, e)
	}
	out := make([]*BuildSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sortNewestFirst(out)
	return out
}

func applyTo(byID map[string]*BuildSummary, e Event) *BuildSummary {
	id := e.BuildID()
	if id == "" {
		return nil
	}
	s, ok := byID[id]
	if !ok {
		s = &BuildSummary{BuildID: id, Device: e.Device(), Status: StatusRunning, StartedAt: e.Timestamp()}
		byID[id] = s
	}
	s.apply(e)
	return s
}

func sortNewestFirst(s []*BuildSummary) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].StartedAt.After(s[j].StartedAt) })
}

// BuildHistoryProjection keeps a bounded in-memory view of recent builds.
type BuildHistoryProjection struct {
	mu         sync.RWMutex
	builds     map[string]*BuildSummary
	maxSize    int
	staleAfter time.Duration
}

// abandonedError is recorded on builds that never reached a terminal event.
const abandonedError = "abandoned: no terminal event recorded before restart"

// NewBuildHistoryProjection creates a projection retaining at most
// maxHistorySize finished builds (100 when non-positive). Running builds are
// always retained.
func NewBuildHistoryProjection(maxHistorySize int) *BuildHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &BuildHistoryProjection{builds: map[string]*BuildSummary{}, maxSize: maxHistorySize}
}

// SetStaleAfter makes Rebuild mark running builds older than d as failed.
// Zero disables the check.
func (p *BuildHistoryProjection) SetStaleAfter(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staleAfter = d
}

// Rebuild replaces the projection with events from store newer than since.
// Running builds started more than the stale window ago are marked failed.
func (p *BuildHistoryProjection) Rebuild(ctx context.Context, store Store, since time.Time) error {
	events, err := store.GetRange(ctx, since, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.builds = map[string]*BuildSummary{}
	for _, e := range events {
		applyTo(p.builds, e)
	}
	p.abandonStaleLocked(time.Now())
	p.pruneLocked()
	return nil
}

func (p *BuildHistoryProjection) abandonStaleLocked(now time.Time) {
	if p.staleAfter <= 0 {
		return
	}
	cutoff := now.Add(-p.staleAfter)
	for _, s := range p.builds {
		if s.Status == StatusRunning && s.StartedAt.Before(cutoff) {
			s.finish(now, StatusFailed)
			s.Error = abandonedError
		}
	}
}

// Apply folds a single event into the projection.
func (p *BuildHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := applyTo(p.builds, e); s != nil && s.Status != StatusRunning {
		p.pruneLocked()
	}
}

// pruneLocked drops the oldest finished builds beyond maxSize.
func (p *BuildHistoryProjection) pruneLocked() {
	var finished []*BuildSummary
	for _, s := range p.builds {
		if s.Status != StatusRunning {
			finished = append(finished, s)
		}
	}
	if len(finished) <= p.maxSize {
		return
	}
	sortNewestFirst(finished)
	for _, s := range finished[p.maxSize:] {
		delete(p.builds, s.BuildID)
	}
}

// GetHistory returns copies of all retained summaries, newest first.
func (p *BuildHistoryProjection) GetHistory() []*BuildSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*BuildSummary, 0, len(p.builds))
	for _, s := range p.builds {
		out = append(out, s.clone())
	}
	sortNewestFirst(out)
	return out
}

// GetBuild returns the summary for a specific build.
func (p *BuildHistoryProjection) GetBuild(buildID string) (*BuildSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.builds[buildID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// GetActiveBuilds returns the builds still running, newest first.
func (p *BuildHistoryProjection) GetActiveBuilds() []*BuildSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*BuildSummary
	for _, s := range p.builds {
		if s.Status == StatusRunning {
			out = append(out, s.clone())
		}
	}
	sortNewestFirst(out)
	return out
}
