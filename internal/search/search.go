package search

import (
	"context"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/search/brave"
	"github.com/voltlab/circuitreview/internal/search/models"
	"github.com/voltlab/circuitreview/internal/search/scrape"
	"github.com/voltlab/circuitreview/internal/search/serper"
)

// Searcher performs online lookups for ambiguous component parameters and
// datasheets. Implementations degrade to an empty result list on failure at
// the call sites that require it.
type Searcher interface {
	Search(ctx context.Context, query string, topN int) ([]models.Result, error)
}

type Provider string

const (
	BraveProvider  Provider = "brave"
	SerperProvider Provider = "serper"
	ScrapeProvider Provider = "scrape"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var ErrUnsupportedProvider = &Error{"unsupported search provider"}

// NewSearcher builds the configured search provider. The scrape provider
// needs no API key and is the default fallback chain.
func NewSearcher(cfg config.SearchConfig) (Searcher, error) {
	switch Provider(cfg.Provider) {
	case BraveProvider:
		return brave.Search{APIKey: cfg.APIKey}, nil
	case SerperProvider:
		return serper.Search{APIKey: cfg.APIKey}, nil
	case ScrapeProvider, "":
		return scrape.New(), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
