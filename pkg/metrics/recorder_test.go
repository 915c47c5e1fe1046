package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// brokenStore fails every write, for exercising best-effort recording.
type brokenStore struct {
	MemoryStore
}

func (b *brokenStore) Insert(context.Context, Sample) error {
	return errors.New("store down")
}

func TestRecordStampsAndStores(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	err := rec.Record(context.Background(), TypeRequestLatency, 12.5, Tags{TagEndpoint: "/events"})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	s := got[0]
	if s.Type != TypeRequestLatency || s.Value != 12.5 || !s.RecordedAt.Equal(now) {
		t.Errorf("unexpected sample: %+v", s)
	}
}

func TestRecordDropsOnStoreFailure(t *testing.T) {
	rec := NewRecorder(&brokenStore{}, zerolog.Nop())

	if err := rec.Record(context.Background(), TypeRequestCount, 1, nil); err != nil {
		t.Errorf("store failure must not surface to the caller, got %v", err)
	}
}

func TestRecordRejectsInvalidTags(t *testing.T) {
	rec := NewRecorder(NewMemoryStore(), zerolog.Nop())

	err := rec.Record(context.Background(), TypeRequestLatency, 1, Tags{"": "x"})
	if !errors.Is(err, ErrInvalidTags) {
		t.Errorf("empty tag key should return ErrInvalidTags, got %v", err)
	}

	err = rec.Record(context.Background(), TypeRequestLatency, 1, Tags{"nested": map[string]any{}})
	if !errors.Is(err, ErrInvalidTags) {
		t.Errorf("non-primitive tag value should return ErrInvalidTags, got %v", err)
	}
}

func TestRecordRequestLatencyTags(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zerolog.Nop())

	rec.RecordRequestLatency(context.Background(), "/events", "POST", 502, 150*time.Millisecond, "upstream error")

	got, err := store.Query(context.Background(), Filter{Type: TypeRequestLatency})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	s := got[0]
	if s.Value != 150 {
		t.Errorf("latency value = %v ms, want 150", s.Value)
	}
	if s.Tags.getString(TagEndpoint) != "/events" || s.Tags.getString(TagMethod) != "POST" {
		t.Errorf("missing grouping tags: %v", s.Tags)
	}
	if !s.Tags.isError() {
		t.Errorf("error message should mark the sample as an error: %v", s.Tags)
	}
}

func TestCleanupUsesFixedCutoff(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	insertSamples(t, store,
		Sample{Type: TypeRequestLatency, Value: 1, RecordedAt: now.Add(-2 * time.Hour)},
		Sample{Type: TypeRequestLatency, Value: 2, RecordedAt: now.Add(-time.Minute)},
	)

	deleted, err := rec.Cleanup(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d samples, want 1", deleted)
	}

	// Idempotent with unchanged data.
	deleted, err = rec.Cleanup(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("repeated cleanup deleted %d samples, want 0", deleted)
	}
}
