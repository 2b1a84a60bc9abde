package eventstore

import (
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"
)

const testBuildID = "build-1"

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	started, err := NewBuildStarted(testBuildID, "dev-01", BuildStartedData{Repository: "git@example.com:fw.git", Branch: "main"})
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	id, err := store.Append(ctx, started)
	if err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive id, got %d", id)
	}

	events, err := store.GetByBuildID(ctx, testBuildID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	e := events[0]
	if e.BuildID() != testBuildID || e.Device() != "dev-01" || e.Type() != TypeBuildStarted {
		t.Errorf("unexpected event %+v", e)
	}
	var data BuildStartedData
	if err := Decode(e, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Branch != "main" {
		t.Errorf("expected branch main, got %q", data.Branch)
	}
	if e.Timestamp().Sub(started.Timestamp()).Abs() > time.Millisecond {
		t.Errorf("timestamp not preserved: %v vs %v", e.Timestamp(), started.Timestamp())
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()

	old, _ := NewStageCompleted("old", "dev", "checkout", time.Second)
	old.EventTimestamp = time.Now().Add(-2 * time.Hour)
	recent, _ := NewStageCompleted("new", "dev", "checkout", time.Second)

	for _, e := range []Event{old, recent} {
		if _, err := store.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := store.GetRange(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 1 || events[0].BuildID() != "new" {
		t.Fatalf("expected only the recent event, got %d", len(events))
	}
}

func TestEventStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "events.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e, _ := NewBuildFailed(testBuildID, "dev", BuildFailedData{Stage: "checkout", Error: "boom"})
	if _, err := store.Append(t.Context(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	events, err := reopened.GetByBuildID(t.Context(), testBuildID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d (%v)", len(events), err)
	}
}

func TestEventStoreClosedAppendFails(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Close()

	e, _ := NewStageCompleted(testBuildID, "dev", "build", time.Second)
	_, err = store.Append(t.Context(), e)
	if !stderrors.Is(err, ErrEventAppendFailed) {
		t.Fatalf("expected ErrEventAppendFailed, got %v", err)
	}
}
