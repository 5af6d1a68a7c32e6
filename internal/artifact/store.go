package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Ref is a stable reference to a saved artifact. Content behind a Ref is
// written once and never modified.
type Ref struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// SaveOptions tweak the generated filename and recorded content type.
type SaveOptions struct {
	Ext         string
	ContentType string
}

// Store persists request/response snapshots under a single directory and
// serves them back by filename. Saving is best-effort from the pipeline's
// point of view: callers receive an error but are free to discard it.
type Store struct {
	dir     string
	baseURL string
	logger  *log.Logger
}

// NewStore creates an artifact store rooted at dir. URLs returned by Save
// are baseURL + "/" + filename.
func NewStore(dir, baseURL string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("artifact dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.New(log.Writer(), "[ARTIFACT] ", log.LstdFlags),
	}, nil
}

// Dir returns the backing directory, for static file serving.
func (s *Store) Dir() string { return s.dir }

// Save writes content once under a collision-free generated filename and
// returns its reference. Two saves with identical hint and content always
// produce distinct filenames.
func (s *Store) Save(content []byte, hint string, opts SaveOptions) (Ref, error) {
	ext := opts.Ext
	if ext == "" {
		ext = ".txt"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	filename := fmt.Sprintf("%d_%s_%s%s", time.Now().UnixMilli(), sanitizeHint(hint), randomSuffix(), ext)
	path := filepath.Join(s.dir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Ref{}, fmt.Errorf("create artifact %s: %w", filename, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return Ref{}, fmt.Errorf("write artifact %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		return Ref{}, fmt.Errorf("close artifact %s: %w", filename, err)
	}

	return Ref{URL: s.baseURL + "/" + filename, Filename: filename}, nil
}

// sanitizeHint keeps the hint filesystem-safe; everything outside
// [a-zA-Z0-9_-] becomes an underscore, and the hint is capped short.
func sanitizeHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = "artifact"
	}
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	return b.String()
}

func randomSuffix() string {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%06d", time.Now().Nanosecond()%1000000)
	}
	return hex.EncodeToString(buf[:])
}
