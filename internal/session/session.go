package session

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltlab/circuitreview/internal/progress"
	"github.com/voltlab/circuitreview/internal/review"
)

// Record is a durable snapshot of one full review run. Records are created
// only on explicit save and removed only on explicit delete.
type Record struct {
	ID        string              `json:"id"`
	Title     string              `json:"title,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
	Text      string              `json:"text,omitempty"`
	History   review.Conversation `json:"history,omitempty"`
	Markdown  string              `json:"markdown,omitempty"`
	Timeline  []progress.Event    `json:"timeline,omitempty"`
}

// Store keeps one JSON file per record under a configured directory.
type Store struct {
	dir    string
	logger *log.Logger
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "sessions"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: log.New(log.Writer(), "[SESSIONS] ", log.LstdFlags),
	}, nil
}

// Save writes the record and returns its id, generating one for new
// records. An existing id overwrites the prior snapshot in place.
func (s *Store) Save(rec Record) (string, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", rec.ID, err)
	}
	if err := os.WriteFile(s.path(rec.ID), data, 0o644); err != nil {
		return "", fmt.Errorf("write session %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

func (s *Store) Get(id string) (Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return Record{}, fmt.Errorf("read session %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

// List returns all records newest first. Unreadable files are logged and
// skipped so one corrupt snapshot does not hide the rest.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.Get(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Printf("skipping %s: %v", entry.Name(), err)
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// path confines every id to a flat file inside the store directory.
func (s *Store) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}
