package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), "/artifacts")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSaveDistinctFilenames(t *testing.T) {
	store := newTestStore(t)
	a, err := store.Save([]byte("same content"), "vision response", SaveOptions{})
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	b, err := store.Save([]byte("same content"), "vision response", SaveOptions{})
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if a.Filename == b.Filename {
		t.Fatalf("identical hint+content must never overwrite, both got %s", a.Filename)
	}
	for _, ref := range []Ref{a, b} {
		data, err := os.ReadFile(filepath.Join(store.Dir(), ref.Filename))
		if err != nil {
			t.Fatalf("read %s: %v", ref.Filename, err)
		}
		if string(data) != "same content" {
			t.Fatalf("content mismatch in %s", ref.Filename)
		}
	}
}

func TestSaveSanitizesHint(t *testing.T) {
	store := newTestStore(t)
	ref, err := store.Save([]byte("x"), "../../etc/passwd <script>", SaveOptions{Ext: "json"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.ContainsAny(ref.Filename, "/<>") {
		t.Fatalf("hint not sanitized: %s", ref.Filename)
	}
	if !strings.HasSuffix(ref.Filename, ".json") {
		t.Fatalf("expected .json extension, got %s", ref.Filename)
	}
}

func TestSaveURLUsesBaseURL(t *testing.T) {
	store := newTestStore(t)
	ref, err := store.Save([]byte("x"), "report", SaveOptions{Ext: ".md"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(ref.URL, "/artifacts/") {
		t.Fatalf("expected /artifacts/ URL, got %s", ref.URL)
	}
	if !strings.HasSuffix(ref.URL, ref.Filename) {
		t.Fatalf("URL should end with filename: %s vs %s", ref.URL, ref.Filename)
	}
}

func TestSweepOnceRemovesOnlyExpired(t *testing.T) {
	store := newTestStore(t)
	old, err := store.Save([]byte("old"), "old", SaveOptions{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	fresh, err := store.Save([]byte("fresh"), "fresh", SaveOptions{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	oldPath := filepath.Join(store.Dir(), old.Filename)
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	sweeper := NewSweeper(store, "@daily", 24*time.Hour)
	if removed := sweeper.SweepOnce(time.Now()); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatal("expired artifact should be gone")
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), fresh.Filename)); err != nil {
		t.Fatalf("fresh artifact should remain: %v", err)
	}
}
