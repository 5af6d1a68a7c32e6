package scrape

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/voltlab/circuitreview/internal/search/models"
)

// Search is the zero-key fallback provider: it scrapes a public search
// results page, first directly, then through a text-proxy mirror when the
// direct fetch is blocked. All failures degrade to an empty result list.
type Search struct {
	Client      *http.Client
	Endpoint    string // template with %s for the escaped query
	ProxyPrefix string
}

func New() *Search {
	return &Search{
		Client:      &http.Client{Timeout: 20 * time.Second},
		Endpoint:    "https://html.duckduckgo.com/html/?q=%s",
		ProxyPrefix: "https://r.jina.ai/",
	}
}

var anchorRe = regexp.MustCompile(`(?is)<a[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
var tagRe = regexp.MustCompile(`(?s)<[^>]+>`)

func (s *Search) Search(ctx context.Context, q string, topN int) ([]models.Result, error) {
	target := strings.Replace(s.Endpoint, "%s", url.QueryEscape(q), 1)
	if results := s.fetchAndParse(ctx, target, topN); len(results) > 0 {
		return results, nil
	}
	if s.ProxyPrefix != "" {
		if results := s.fetchAndParse(ctx, s.ProxyPrefix+target, topN); len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

func (s *Search) fetchAndParse(ctx context.Context, target string, topN int) []models.Result {
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; circuitreview/1.0)")
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil
	}
	return parseAnchors(string(body), topN)
}

func parseAnchors(page string, topN int) []models.Result {
	var out []models.Result
	seen := make(map[string]bool)
	for _, m := range anchorRe.FindAllStringSubmatch(page, -1) {
		href := resolveHref(m[1])
		if href == "" || seen[href] {
			continue
		}
		title := strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(m[2], "")))
		if title == "" {
			continue
		}
		seen[href] = true
		out = append(out, models.Result{Title: title, URL: href})
		if len(out) >= topN {
			break
		}
	}
	return out
}

// resolveHref unwraps redirect-style result links and drops anything that is
// not a plain http(s) URL.
func resolveHref(href string) string {
	href = html.UnescapeString(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if wrapped := u.Query().Get("uddg"); wrapped != "" {
		if inner, err := url.QueryUnescape(wrapped); err == nil {
			href = inner
			u, err = url.Parse(href)
			if err != nil {
				return ""
			}
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if strings.Contains(u.Host, "duckduckgo.com") {
		return ""
	}
	return href
}
