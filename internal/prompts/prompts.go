package prompts

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voltlab/circuitreview/config"
)

// Kind names the two prompt roles a pipeline stage can request.
const (
	KindSystem = "system"
	KindPass   = "pass"
)

// Loader resolves prompt text from a directory of per-agent files laid out as
// <dir>/<agent>/<kind>[_<variant>].<lang>.md. The cache is owned by the
// Loader instance, not a package-level singleton, so tests and multi-config
// deployments can hold independent loaders.
type Loader struct {
	dir         string
	defaultLang string
	strict      bool

	mu     sync.RWMutex
	cache  map[string]string
	logger *log.Logger
}

func NewLoader(cfg config.PromptsConfig) *Loader {
	lang := cfg.Lang
	if lang == "" {
		lang = "zh"
	}
	return &Loader{
		dir:         cfg.Dir,
		defaultLang: lang,
		strict:      cfg.Strict,
		cache:       make(map[string]string),
		logger:      log.New(log.Writer(), "[PROMPTS] ", log.LstdFlags),
	}
}

// Load returns the prompt text for an agent/kind/lang/variant combination.
// In strict mode a missing or empty file is a configuration error that fails
// the request; otherwise it is logged and an empty string returned.
func (l *Loader) Load(agent, kind, lang, variant string) (string, error) {
	if lang == "" {
		lang = l.defaultLang
	}
	cacheKey := strings.Join([]string{agent, kind, lang, variant}, "/")

	l.mu.RLock()
	if text, ok := l.cache[cacheKey]; ok {
		l.mu.RUnlock()
		return text, nil
	}
	l.mu.RUnlock()

	text, err := l.read(agent, kind, lang, variant)
	if err != nil {
		if l.strict {
			return "", err
		}
		l.logger.Printf("skipping prompt %s: %v", cacheKey, err)
		return "", nil
	}

	l.mu.Lock()
	l.cache[cacheKey] = text
	l.mu.Unlock()
	return text, nil
}

// read tries the requested language first and falls back to the other
// well-known language before giving up.
func (l *Loader) read(agent, kind, lang, variant string) (string, error) {
	langs := []string{lang}
	if other := otherLang(lang); other != "" {
		langs = append(langs, other)
	}

	var lastErr error
	for _, lg := range langs {
		path := l.path(agent, kind, lg, variant)
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = fmt.Errorf("prompt file %s: %w", path, err)
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			lastErr = fmt.Errorf("prompt file %s is empty", path)
			continue
		}
		return text, nil
	}
	return "", lastErr
}

func (l *Loader) path(agent, kind, lang, variant string) string {
	name := kind
	if variant != "" {
		name += "_" + variant
	}
	return filepath.Join(l.dir, agent, fmt.Sprintf("%s.%s.md", name, lang))
}

func otherLang(lang string) string {
	switch lang {
	case "zh":
		return "en"
	case "en":
		return "zh"
	}
	return ""
}

// Preload walks the prompt directory and warms the cache. Unreadable files
// follow the strict/non-strict contract of Load.
func (l *Loader) Preload() error {
	return filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if l.strict {
				return err
			}
			l.logger.Printf("preload: %v", err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 2 {
			return nil
		}
		agent := parts[0]
		base := strings.TrimSuffix(parts[1], ".md")
		dot := strings.LastIndex(base, ".")
		if dot <= 0 {
			return nil
		}
		lang := base[dot+1:]
		kind := base[:dot]
		variant := ""
		if i := strings.Index(kind, "_"); i > 0 {
			variant = kind[i+1:]
			kind = kind[:i]
		}
		if _, err := l.Load(agent, kind, lang, variant); err != nil && l.strict {
			return err
		}
		return nil
	})
}
