package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const resultsPage = `<html><body>
<a class="result__a" href="https://www.ti.com/lit/ds/symlink/ne555.pdf"><b>NE555</b> datasheet</a>
<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.st.com%2Flm358.pdf">LM358 datasheet</a>
<a href="javascript:void(0)">ignore me</a>
<a class="result__a" href="https://www.ti.com/lit/ds/symlink/ne555.pdf">NE555 duplicate</a>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := New()
	s.Endpoint = srv.URL + "/?q=%s"
	s.ProxyPrefix = ""

	results, err := s.Search(context.Background(), "ne555 datasheet", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (dedup + filters applied), got %d: %v", len(results), results)
	}
	if results[0].URL != "https://www.ti.com/lit/ds/symlink/ne555.pdf" {
		t.Fatalf("unexpected first URL %s", results[0].URL)
	}
	if results[0].Title != "NE555 datasheet" {
		t.Fatalf("anchor markup should be stripped, got %q", results[0].Title)
	}
	if results[1].URL != "https://www.st.com/lm358.pdf" {
		t.Fatalf("redirect link should be unwrapped, got %s", results[1].URL)
	}
}

func TestSearchTopNLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := New()
	s.Endpoint = srv.URL + "/?q=%s"
	s.ProxyPrefix = ""

	results, err := s.Search(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected topN to cap results, got %d", len(results))
	}
}

func TestSearchProxyFallback(t *testing.T) {
	var direct, proxied int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("proxied") == "1" {
			atomic.AddInt32(&proxied, 1)
			w.Write([]byte(resultsPage))
			return
		}
		atomic.AddInt32(&direct, 1)
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	s := New()
	s.Endpoint = srv.URL + "/?q=%s"
	s.ProxyPrefix = srv.URL + "/?proxied=1&u="

	results, err := s.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results via proxy fallback")
	}
	if atomic.LoadInt32(&direct) != 1 || atomic.LoadInt32(&proxied) != 1 {
		t.Fatalf("expected direct then proxy fetch, got direct=%d proxied=%d", direct, proxied)
	}
}

func TestSearchAllFailuresEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New()
	s.Endpoint = srv.URL + "/?q=%s"
	s.ProxyPrefix = srv.URL + "/p/"

	results, err := s.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("failures must degrade to empty list, got error %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %v", results)
	}
}
