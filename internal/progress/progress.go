package progress

import (
	"context"
	"log"
	"time"

	"github.com/voltlab/circuitreview/internal/artifact"
)

// Origin identifies which side of the system produced an event.
type Origin string

const (
	OriginAgent    Origin = "agent"
	OriginFrontend Origin = "frontend"
	OriginBackend  Origin = "backend"
	OriginExternal Origin = "external"
)

// Event is one typed, timestamped record of pipeline progress. Events are
// created once and appended; they are never edited or removed.
type Event struct {
	Step      string         `json:"step"`
	TS        int64          `json:"ts"` // epoch millis
	Origin    Origin         `json:"origin"`
	Category  string         `json:"category,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Artifacts []artifact.Ref `json:"artifacts,omitempty"`
}

// Store is the pluggable backing for per-id event sequences. Implementations
// must keep insertion order and support concurrent appends.
type Store interface {
	Append(ctx context.Context, id string, ev Event) error
	Events(ctx context.Context, id string) ([]Event, error)
	Clear(ctx context.Context, id string) error
}

// Tracker wraps a Store with the pipeline-facing contract: pushes with an
// empty id are silent no-ops, and store failures are swallowed so progress
// tracking can never fail the pipeline that reports into it.
type Tracker struct {
	store  Store
	logger *log.Logger
}

func NewTracker(store Store) *Tracker {
	return &Tracker{
		store:  store,
		logger: log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags),
	}
}

// Push appends one event to the id's timeline. A zero TS is stamped with the
// current time. Errors are logged and discarded.
func (t *Tracker) Push(ctx context.Context, id string, ev Event) {
	if t == nil || id == "" {
		return
	}
	if ev.TS == 0 {
		ev.TS = time.Now().UnixMilli()
	}
	if ev.Origin == "" {
		ev.Origin = OriginAgent
	}
	if err := t.store.Append(ctx, id, ev); err != nil {
		t.logger.Printf("append %s/%s: %v", id, ev.Step, err)
	}
}

// Snapshot returns all events pushed so far for the id, in insertion order.
// Each call returns a superset of any prior call for the same id.
func (t *Tracker) Snapshot(ctx context.Context, id string) []Event {
	if t == nil || id == "" {
		return nil
	}
	events, err := t.store.Events(ctx, id)
	if err != nil {
		t.logger.Printf("read %s: %v", id, err)
		return nil
	}
	return events
}

// Clear drops the id's timeline.
func (t *Tracker) Clear(ctx context.Context, id string) {
	if t == nil || id == "" {
		return
	}
	if err := t.store.Clear(ctx, id); err != nil {
		t.logger.Printf("clear %s: %v", id, err)
	}
}
