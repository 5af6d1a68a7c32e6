package progress

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStoreAppendOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, "run-1", Event{Step: fmt.Sprintf("step_%d", i), TS: int64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	events, err := store.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Step != fmt.Sprintf("step_%d", i) {
			t.Fatalf("insertion order broken at %d: %s", i, ev.Step)
		}
	}
}

func TestMemoryStoreSnapshotIsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Append(ctx, "run-1", Event{Step: "a"})
	events, _ := store.Events(ctx, "run-1")
	events[0].Step = "mutated"
	again, _ := store.Events(ctx, "run-1")
	if again[0].Step != "a" {
		t.Fatal("store state must not be mutable through a snapshot")
	}
}

func TestTrackerEmptyIDNoOp(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()
	tracker.Push(ctx, "", Event{Step: "ignored"})
	events, _ := store.Events(ctx, "")
	if len(events) != 0 {
		t.Fatalf("push with empty id must be a no-op, got %d events", len(events))
	}
}

func TestTrackerStampsTimestamp(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()
	tracker.Push(ctx, "run-1", Event{Step: "a"})
	events := tracker.Snapshot(ctx, "run-1")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].TS == 0 {
		t.Fatal("zero TS should be stamped on push")
	}
	if events[0].Origin != OriginAgent {
		t.Fatalf("origin should default to agent, got %s", events[0].Origin)
	}
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, id string, ev Event) error {
	return fmt.Errorf("backing store down")
}
func (failingStore) Events(ctx context.Context, id string) ([]Event, error) {
	return nil, fmt.Errorf("backing store down")
}
func (failingStore) Clear(ctx context.Context, id string) error {
	return fmt.Errorf("backing store down")
}

func TestTrackerSwallowsStoreErrors(t *testing.T) {
	tracker := NewTracker(failingStore{})
	ctx := context.Background()
	// Must not panic or propagate.
	tracker.Push(ctx, "run-1", Event{Step: "a"})
	if events := tracker.Snapshot(ctx, "run-1"); events != nil {
		t.Fatalf("expected nil snapshot on store failure, got %v", events)
	}
	tracker.Clear(ctx, "run-1")
}

func TestTrackerConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Push(ctx, "run-1", Event{Step: fmt.Sprintf("s%d", i)})
		}(i)
	}
	wg.Wait()
	if got := len(tracker.Snapshot(ctx, "run-1")); got != 20 {
		t.Fatalf("expected 20 events, got %d", got)
	}
}

func TestSnapshotSuperset(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()
	tracker.Push(ctx, "run-1", Event{Step: "a"})
	first := tracker.Snapshot(ctx, "run-1")
	tracker.Push(ctx, "run-1", Event{Step: "b"})
	second := tracker.Snapshot(ctx, "run-1")
	if len(second) <= len(first) {
		t.Fatalf("later snapshot must be a strict superset after a push: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if second[i].Step != first[i].Step {
			t.Fatalf("prefix mismatch at %d", i)
		}
	}
}
