package eventstore

import (
	"context"
	"time"
)

// Journal persists events and keeps a live projection of them.
type Journal struct {
	store      Store
	projection *BuildHistoryProjection
}

// NewJournal wraps store. The projection starts empty; call Load to seed it.
func NewJournal(store Store, maxHistorySize int) *Journal {
	return &Journal{store: store, projection: NewBuildHistoryProjection(maxHistorySize)}
}

// Open creates a journal backed by a SQLite database at path and loads the
// last day of history into the projection. Builds left running for longer
// than staleAfter are reported as failed.
func Open(ctx context.Context, path string, maxHistorySize int, staleAfter time.Duration) (*Journal, error) {
	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	j := NewJournal(store, maxHistorySize)
	j.projection.SetStaleAfter(staleAfter)
	if err := j.Load(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		_ = store.Close()
		return nil, err
	}
	return j, nil
}

// Load rebuilds the projection from events newer than since.
func (j *Journal) Load(ctx context.Context, since time.Time) error {
	return j.projection.Rebuild(ctx, j.store, since)
}

// Record persists e and applies it to the projection.
func (j *Journal) Record(ctx context.Context, e Event) error {
	id, err := j.store.Append(ctx, e)
	if err != nil {
		return err
	}
	if b, ok := e.(interface{ setID(int64) }); ok {
		b.setID(id)
	}
	j.projection.Apply(e)
	return nil
}

// Recent returns the projected summaries, newest first.
func (j *Journal) Recent() []*BuildSummary {
	return j.projection.GetHistory()
}

// Active returns summaries of builds that have started but not finished.
func (j *Journal) Active() []*BuildSummary {
	return j.projection.GetActiveBuilds()
}

// Summary returns the summary of one build, consulting the store when the
// build has aged out of the projection.
func (j *Journal) Summary(ctx context.Context, buildID string) (*BuildSummary, bool, error) {
	if s, ok := j.projection.GetBuild(buildID); ok {
		return s, true, nil
	}
	events, err := j.store.GetByBuildID(ctx, buildID)
	if err != nil {
		return nil, false, err
	}
	if len(events) == 0 {
		return nil, false, nil
	}
	return Project(events)[0], true, nil
}

// Since returns summaries of builds with events at or after since.
func (j *Journal) Since(ctx context.Context, since time.Time) ([]*BuildSummary, error) {
	events, err := j.store.GetRange(ctx, since, time.Now().Add(time.Hour))
	if err != nil {
		return nil, err
	}
	return Project(events), nil
}

// Events returns the raw events of one build.
func (j *Journal) Events(ctx context.Context, buildID string) ([]Event, error) {
	return j.store.GetByBuildID(ctx, buildID)
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.store.Close()
}
