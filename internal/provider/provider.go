package provider

import (
	"encoding/base64"
	"log"
	"net/http"
	"time"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/telemetry"
)

// Attachment is an input image or PDF owned by the request for its lifetime.
// It is never persisted beyond the pipeline run unless explicitly saved as an
// artifact.
type Attachment struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// DataURL encodes the attachment for inline transport to a vision model.
func (a Attachment) DataURL() string {
	mime := a.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Bytes)
}

// Message is the unit exchanged with an upstream model. Content is either a
// plain string or a []ContentPart for vision-capable models.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string    `json:"type"` // text or image_url
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part from a data URL or remote URL.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// Request describes one logical upstream call. The caller resolves the base
// URL into concrete candidates and tries them in order.
type Request struct {
	BaseURL    string
	Model      string
	Messages   []Message
	AuthHeader string // full header value, e.g. "Bearer sk-..."
	PromptOnly bool   // send a {model, prompt} body instead of chat messages
	Timeout    time.Duration
}

// Result is a successful upstream response reduced to its text payload.
type Result struct {
	Text   string
	URL    string // the candidate that answered
	Status int
}

// Caller executes resilient upstream calls against resolved endpoint
// candidates.
type Caller struct {
	client     *http.Client
	retries    int
	extractors []Extractor
	logger     *log.Logger
	tele       *telemetry.Telemetry
}

// NewCaller creates a caller from LLM config. The HTTP client timeout is the
// per-attempt ceiling; per-request timeouts override it via context.
func NewCaller(cfg config.LLMConfig, tele *telemetry.Telemetry) *Caller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Caller{
		client:     &http.Client{Timeout: timeout},
		retries:    cfg.FetchRetries,
		extractors: DefaultExtractors,
		logger:     log.New(log.Writer(), "[PROVIDER] ", log.LstdFlags),
		tele:       tele,
	}
}

// WithExtractors returns a caller using a custom extractor table. New
// provider response shapes are added here, not in the call loop.
func (c *Caller) WithExtractors(extractors []Extractor) *Caller {
	clone := *c
	clone.extractors = extractors
	return &clone
}
