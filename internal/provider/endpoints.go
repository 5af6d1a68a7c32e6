package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// completionSuffixes are the well-known completion endpoint paths tried, in
// order, when the base URL carries no path of its own.
var completionSuffixes = []string{
	"/chat/completions",
	"/chat",
	"/responses",
	"/v1/chat/completions",
	"/v1/chat",
	"/api/chat",
	"/v1/responses",
}

// providerSuffixes narrows or reorders the candidate list for upstreams
// recognized by hostname substring.
var providerSuffixes = []struct {
	hostContains string
	suffixes     []string
}{
	{"deepseek", []string{"/chat/completions", "/beta/chat/completions"}},
	{"bigmodel", []string{"/api/paas/v4/chat/completions"}},
	{"zhipu", []string{"/api/paas/v4/chat/completions"}},
	{"siliconflow", []string{"/v1/chat/completions", "/v1/chat"}},
	{"moonshot", []string{"/v1/chat/completions"}},
	{"openai.com", []string{"/chat/completions", "/v1/chat/completions"}},
}

// ResolveURLs produces the ordered list of full candidate URLs for a base
// URL. A base URL with a non-root path is tried as-is first; the remaining
// candidates are built by appending suffixes to the origin, skipping any
// duplicate of the as-is entry.
func ResolveURLs(baseURL string) ([]string, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, fmt.Errorf("empty base url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q missing scheme or host", raw)
	}

	origin := u.Scheme + "://" + u.Host
	suffixes := completionSuffixes
	host := strings.ToLower(u.Hostname())
	for _, p := range providerSuffixes {
		if strings.Contains(host, p.hostContains) {
			suffixes = p.suffixes
			break
		}
	}

	var candidates []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}

	if path := strings.TrimSuffix(u.Path, "/"); path != "" {
		add(raw)
	}
	for _, s := range suffixes {
		add(origin + s)
	}
	return candidates, nil
}

// HeaderVariants expands an auth header into the alternate conventions some
// upstreams expect. A bearer token is additionally offered as X-Api-Key and
// Api-Key, in that order, after the original. Without auth there is exactly
// one empty set.
func HeaderVariants(authHeader string) []http.Header {
	auth := strings.TrimSpace(authHeader)
	if auth == "" {
		return []http.Header{{}}
	}

	original := http.Header{}
	original.Set("Authorization", auth)
	variants := []http.Header{original}

	if token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); token != auth && token != "" {
		xApi := http.Header{}
		xApi.Set("X-Api-Key", token)
		apiKey := http.Header{}
		apiKey.Set("Api-Key", token)
		variants = append(variants, xApi, apiKey)
	}
	return variants
}
