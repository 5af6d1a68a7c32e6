package provider

import (
	"encoding/json"
	"strings"
)

// Extractor pulls the text payload out of one known upstream response shape.
// Extract returns the text and true when the shape matched with a non-empty
// value.
type Extractor struct {
	Name    string
	Extract func(body map[string]any) (string, bool)
}

// DefaultExtractors is the ordered strategy table for upstream response
// shapes. The first non-empty match wins. Callers may pass their own table
// via Caller.WithExtractors to support additional providers.
var DefaultExtractors = []Extractor{
	{"choices.message.content", extractChoicesMessage},
	{"choices.text", extractChoicesText},
	{"reply", extractField("reply")},
	{"text", extractField("text")},
	{"output", extractField("output")},
	{"markdown", extractField("markdown")},
}

// ExtractText reduces a successful response body to its text payload using
// the extractor table. Bodies that are not JSON objects, or JSON that no
// extractor recognizes, are returned verbatim: a non-JSON success is plain
// text output, not an error.
func ExtractText(body []byte, extractors []Extractor) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, ex := range extractors {
			if text, ok := ex.Extract(obj); ok {
				return text
			}
		}
	}
	return string(body)
}

func extractChoicesMessage(obj map[string]any) (string, bool) {
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := first["message"].(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(msg["content"])
}

func extractChoicesText(obj map[string]any) (string, bool) {
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(first["text"])
}

func extractField(key string) func(map[string]any) (string, bool) {
	return func(obj map[string]any) (string, bool) {
		return nonEmptyString(obj[key])
	}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
