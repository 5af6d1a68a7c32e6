package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voltlab/circuitreview/config"
)

func testCaller(retries int) *Caller {
	return NewCaller(config.LLMConfig{Timeout: 5 * time.Second, FetchRetries: retries}, nil)
}

func chatRequest(baseURL string) Request {
	return Request{
		BaseURL:  baseURL,
		Model:    "test-model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}
}

func TestCallFirstSuccessShortCircuits(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	res, err := testCaller(0).Call(context.Background(), chatRequest(srv.URL))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("expected ok, got %q", res.Text)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly 1 upstream hit, got %d", n)
	}
}

func TestCallHTTPErrorMovesToNextCandidate(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/chat/completions" {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reply":"second candidate"}`))
	}))
	defer srv.Close()

	res, err := testCaller(2).Call(context.Background(), chatRequest(srv.URL))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Text != "second candidate" {
		t.Fatalf("expected fallback candidate result, got %q", res.Text)
	}
	// 404 must not consume the retry budget: one hit per candidate.
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("expected 2 upstream hits, got %d", n)
	}
	if !strings.HasSuffix(res.URL, "/chat") {
		t.Fatalf("expected /chat candidate to answer, got %s", res.URL)
	}
}

func TestCallHeaderVariantRotation(t *testing.T) {
	var sawAuth, sawXApiKey int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "sk-alt" {
			atomic.AddInt32(&sawXApiKey, 1)
			w.Write([]byte(`{"text":"accepted"}`))
			return
		}
		if r.Header.Get("Authorization") != "" {
			atomic.AddInt32(&sawAuth, 1)
		}
		http.Error(w, "bad auth header", http.StatusUnauthorized)
	}))
	defer srv.Close()

	req := chatRequest(srv.URL + "/v1/complete")
	req.AuthHeader = "Bearer sk-alt"
	res, err := testCaller(0).Call(context.Background(), req)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Text != "accepted" {
		t.Fatalf("expected accepted, got %q", res.Text)
	}
	if atomic.LoadInt32(&sawAuth) != 1 || atomic.LoadInt32(&sawXApiKey) != 1 {
		t.Fatalf("expected Authorization then X-Api-Key on the same URL, got auth=%d xapikey=%d", sawAuth, sawXApiKey)
	}
	if !strings.HasSuffix(res.URL, "/v1/complete") {
		t.Fatalf("expected the as-is candidate to answer, got %s", res.URL)
	}
}

func TestCallHTMLResponseClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<!DOCTYPE html><html><body>404 style landing page</body></html>"))
	}))
	defer srv.Close()

	_, err := testCaller(0).Call(context.Background(), chatRequest(srv.URL+"/v1/complete"))
	if err == nil {
		t.Fatal("expected error for HTML response")
	}
	if !errors.Is(err, ErrWrongEndpoint) {
		t.Fatalf("expected ErrWrongEndpoint classification, got %v", err)
	}
}

func TestCallHTMLWithoutContentType(t *testing.T) {
	body := []byte("  <html><head></head><body>login</body></html>")
	if !isHTML("application/json", body) {
		t.Fatal("leading <html should classify as HTML regardless of content type")
	}
	if isHTML("application/json", []byte(`{"ok":true}`)) {
		t.Fatal("JSON body misclassified as HTML")
	}
}

func TestCallExhaustionAggregatesLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded: detail-marker", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testCaller(0).Call(context.Background(), chatRequest(srv.URL))
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !strings.Contains(err.Error(), "detail-marker") {
		t.Fatalf("aggregated error should carry the last failure detail, got: %v", err)
	}
	if !strings.Contains(err.Error(), "all candidate endpoints failed") {
		t.Fatalf("expected aggregated error wrapper, got: %v", err)
	}
}

func TestCallPlainTextSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("## Review\nlooks fine"))
	}))
	defer srv.Close()

	res, err := testCaller(0).Call(context.Background(), chatRequest(srv.URL+"/v1/complete"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Text != "## Review\nlooks fine" {
		t.Fatalf("plain text body should be the result, got %q", res.Text)
	}
}

func TestCallAborted(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := testCaller(0).Call(ctx, chatRequest(srv.URL+"/v1/complete"))
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected abort error")
		}
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled in chain, got %v", err)
		}
		if !strings.Contains(err.Error(), "aborted") {
			t.Fatalf("aborted outcome should be labeled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return after cancellation")
	}
}

func TestCallPromptOnlyPayload(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	req := chatRequest(srv.URL + "/v1/complete")
	req.PromptOnly = true
	if _, err := testCaller(0).Call(context.Background(), req); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(gotBody, `"prompt"`) || strings.Contains(gotBody, `"messages"`) {
		t.Fatalf("expected {model,prompt} payload, got %s", gotBody)
	}
}
