package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrWrongEndpoint marks a 2xx response that carried an HTML document instead
// of the expected JSON or text: almost always a wrong endpoint path or an
// unavailable model, so it gets its own message rather than a generic failure.
var ErrWrongEndpoint = errors.New("wrong endpoint or model unavailable")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	maxBodyBytes   = 4 << 20
	errSnippetLen  = 512
)

// Call resolves the request's base URL into candidates and tries each
// (URL, header) pair in order until one returns 2xx. The first success
// short-circuits all remaining candidates. Exhaustion returns a single
// aggregated error carrying the last observed failure.
func (c *Caller) Call(ctx context.Context, req Request) (Result, error) {
	urls, err := ResolveURLs(req.BaseURL)
	if err != nil {
		return Result{}, err
	}
	headers := HeaderVariants(req.AuthHeader)

	body, err := c.payload(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var lastErr error
	for _, candidate := range urls {
		for _, hdr := range headers {
			res, err := c.tryCandidate(ctx, candidate, hdr, body)
			if err == nil {
				return res, nil
			}
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("call aborted: %w", ctx.Err())
			}
			lastErr = err
		}
	}
	return Result{}, fmt.Errorf("all candidate endpoints failed, last error: %w", lastErr)
}

// tryCandidate attempts one (URL, header) pair with the retry budget.
// Only network failures consume retries with backoff; an HTTP error status
// or an HTML body abandons the candidate immediately.
func (c *Caller) tryCandidate(ctx context.Context, candidate string, hdr http.Header, body []byte) (Result, error) {
	host := hostOf(candidate)
	tries := c.retries + 1
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < tries; attempt++ {
		start := time.Now()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, candidate, bytes.NewReader(body))
		if err != nil {
			return Result{}, fmt.Errorf("build request for %s: %w", candidate, err)
		}
		for k, vs := range hdr {
			for _, v := range vs {
				httpReq.Header.Set(k, v)
			}
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				c.tele.RecordProviderCall(host, "aborted", time.Since(start))
				return Result{}, fmt.Errorf("request to %s aborted: %w", candidate, ctx.Err())
			}
			c.tele.RecordProviderCall(host, "network_error", time.Since(start))
			lastErr = fmt.Errorf("request to %s: %w", candidate, err)
			if attempt < tries-1 {
				c.logger.Printf("network error on %s (attempt %d/%d), retrying in %s: %v", candidate, attempt+1, tries, backoff, err)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return Result{}, ctx.Err()
				}
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if readErr != nil {
			c.tele.RecordProviderCall(host, "network_error", time.Since(start))
			lastErr = fmt.Errorf("read response from %s: %w", candidate, readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if isHTML(resp.Header.Get("Content-Type"), data) {
				c.tele.RecordProviderCall(host, "wrong_endpoint", time.Since(start))
				return Result{}, fmt.Errorf("%w: %s answered with an HTML document", ErrWrongEndpoint, candidate)
			}
			c.tele.RecordProviderCall(host, "success", time.Since(start))
			return Result{
				Text:   ExtractText(data, c.extractors),
				URL:    candidate,
				Status: resp.StatusCode,
			}, nil
		}

		// HTTP error status exhausts the candidate regardless of the
		// remaining retry budget.
		c.tele.RecordProviderCall(host, "http_error", time.Since(start))
		return Result{}, fmt.Errorf("%s: status %d: %s", candidate, resp.StatusCode, snippet(data))
	}
	return Result{}, lastErr
}

func (c *Caller) payload(req Request) ([]byte, error) {
	if req.PromptOnly {
		return json.Marshal(map[string]any{
			"model":  req.Model,
			"prompt": flattenMessages(req.Messages),
		})
	}
	return json.Marshal(map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	})
}

// flattenMessages renders chat messages as plain text for the {model, prompt}
// wire variant. Image parts are dropped; prompt-only upstreams cannot carry
// them anyway.
func flattenMessages(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch content := m.Content.(type) {
		case string:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
		case []ContentPart:
			for _, part := range content {
				if part.Type == "text" && part.Text != "" {
					fmt.Fprintf(&b, "%s: %s\n", m.Role, part.Text)
				}
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func isHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.ToLower(string(bytes.TrimSpace(body)))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errSnippetLen {
		s = s[:errSnippetLen] + "..."
	}
	return s
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
