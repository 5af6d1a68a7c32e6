package review

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/artifact"
	"github.com/voltlab/circuitreview/internal/fetch"
	"github.com/voltlab/circuitreview/internal/progress"
	"github.com/voltlab/circuitreview/internal/prompts"
	"github.com/voltlab/circuitreview/internal/provider"
	"github.com/voltlab/circuitreview/internal/search"
	"github.com/voltlab/circuitreview/internal/telemetry"
)

var reviewTracer = otel.Tracer("circuitreview/review")

const defaultSystemPrompt = `You are a senior hardware engineer reviewing a circuit schematic for design errors, missing protections, and questionable component choices. Answer in the language of the user's request.`

const defaultClarifyBlock = `Before reviewing, ask the user the clarifying questions you need about intent, operating conditions, and constraints. Start the question section with the marker 【问题确认】 (or [Clarifying Questions] when answering in English) and output ONLY questions.`

const defaultReportBlock = `The user has answered your questions. Produce the final structured Markdown review report now. Do not ask further questions.`

// Reviewer drives the direct-review flow: phase detection, prompt
// assembly, an optional search pre-pass, one resilient model call.
type Reviewer struct {
	caller    *provider.Caller
	prompts   *prompts.Loader
	searcher  search.Searcher
	fetcher   *fetch.Fetcher
	tracker   *progress.Tracker
	artifacts *artifact.Store
	tele      *telemetry.Telemetry
	logger    *log.Logger
	topN      int
}

func NewReviewer(
	caller *provider.Caller,
	loader *prompts.Loader,
	searcher search.Searcher,
	fetcher *fetch.Fetcher,
	tracker *progress.Tracker,
	artifacts *artifact.Store,
	tele *telemetry.Telemetry,
	cfg config.SearchConfig,
) *Reviewer {
	topN := cfg.TopN
	if topN <= 0 {
		topN = 3
	}
	return &Reviewer{
		caller:    caller,
		prompts:   loader,
		searcher:  searcher,
		fetcher:   fetcher,
		tracker:   tracker,
		artifacts: artifacts,
		tele:      tele,
		logger:    log.New(log.Writer(), "[REVIEW] ", log.LstdFlags),
		topN:      topN,
	}
}

// Input describes one review request against one model.
type Input struct {
	Text        string
	Attachments []provider.Attachment
	History     Conversation

	BaseURL    string
	AuthHeader string
	Model      string

	Lang          string
	ProgressID    string
	EnrichContext bool
}

// Review runs the single-model flow and returns the model's Markdown.
func (r *Reviewer) Review(ctx context.Context, in Input) (Output, error) {
	ctx, span := reviewTracer.Start(ctx, "review.review")
	defer span.End()
	span.SetAttributes(attribute.String("model", in.Model))

	phase := DetectPhase(in.History)
	r.tele.RecordReviewRequest(string(phase))
	span.SetAttributes(attribute.String("phase", string(phase)))

	system, err := r.systemPrompt(phase, in.Lang)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Output{}, err
	}

	userText := strings.TrimSpace(in.Text)
	if in.EnrichContext && r.searcher != nil && userText != "" {
		if sources := r.collectSources(ctx, in, userText); sources != "" {
			userText += "\n\nReference sources:\n" + sources
		}
	}

	messages := make([]provider.Message, 0, len(in.History)+2)
	messages = append(messages, provider.Message{Role: "system", Content: system})
	for _, turn := range in.History {
		messages = append(messages, provider.Message{Role: turn.Role, Content: turn.Content})
	}
	parts := []provider.ContentPart{provider.TextPart(userText)}
	for _, a := range in.Attachments {
		parts = append(parts, provider.ImagePart(a.DataURL()))
	}
	messages = append(messages, provider.Message{Role: "user", Content: parts})

	r.tracker.Push(ctx, in.ProgressID, progress.Event{
		Step:     "review_model_request",
		Category: "review",
		Meta:     map[string]any{"model": in.Model, "phase": string(phase)},
	})

	res, err := r.caller.Call(ctx, provider.Request{
		BaseURL:    in.BaseURL,
		Model:      in.Model,
		AuthHeader: in.AuthHeader,
		Messages:   messages,
	})
	if err != nil {
		r.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:     "review_model_response",
			Category: "review",
			Meta:     map[string]any{"model": in.Model, "error": err.Error()},
		})
		span.SetStatus(codes.Error, err.Error())
		return Output{}, fmt.Errorf("review call: %w", err)
	}

	var refs []artifact.Ref
	if r.artifacts != nil {
		if ref, saveErr := r.artifacts.Save([]byte(res.Text), "review_response", artifact.SaveOptions{Ext: ".md"}); saveErr == nil {
			refs = append(refs, ref)
		}
	}
	r.tracker.Push(ctx, in.ProgressID, progress.Event{
		Step:      "review_model_response",
		Category:  "review",
		Meta:      map[string]any{"model": in.Model, "url": res.URL},
		Artifacts: refs,
	})
	span.SetStatus(codes.Ok, "completed")
	return Output{Model: in.Model, Phase: phase, Markdown: res.Text}, nil
}

// ReviewAll fans one request out to several models concurrently. Every
// branch completes; a failing branch is reported in its own entry and
// never cancels a sibling.
func (r *Reviewer) ReviewAll(ctx context.Context, in Input, targets []ModelTarget) []ModelResult {
	results := make([]ModelResult, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			branch := in
			branch.BaseURL = target.BaseURL
			branch.AuthHeader = target.AuthHeader
			branch.Model = target.Model

			out, err := r.Review(ctx, branch)
			results[i] = ModelResult{Target: target, Output: out, Err: err}
			if err != nil {
				results[i].Error = err.Error()
				r.logger.Printf("model %s failed: %v", target.Model, err)
			}
			return nil
		})
	}
	g.Wait() // branches never return errors
	return results
}

// systemPrompt joins the base review prompt with the phase-specific
// instruction block. Configured prompt files win over the built-ins.
func (r *Reviewer) systemPrompt(phase Phase, lang string) (string, error) {
	system, err := r.prompts.Load("review", prompts.KindSystem, lang, "")
	if err != nil {
		return "", fmt.Errorf("review system prompt: %w", err)
	}
	if system == "" {
		system = defaultSystemPrompt
	}

	block, err := r.prompts.Load("review", prompts.KindPass, lang, string(phase))
	if err != nil {
		return "", fmt.Errorf("review %s prompt: %w", phase, err)
	}
	if block == "" {
		if phase == PhaseReview {
			block = defaultReportBlock
		} else {
			block = defaultClarifyBlock
		}
	}
	return system + "\n\n" + block, nil
}

// collectSources runs the optional pre-review lookup. Everything here is
// best-effort: any failure just shrinks the source list.
func (r *Reviewer) collectSources(ctx context.Context, in Input, query string) string {
	if len(query) > 200 {
		query = query[:200]
	}
	hits, err := r.searcher.Search(ctx, query, r.topN)
	if err != nil {
		r.logger.Printf("context search failed: %v", err)
		return ""
	}

	var b strings.Builder
	count := 0
	for _, hit := range hits {
		line := hit.Snippet
		if r.fetcher != nil {
			if sum, err := r.fetcher.Summarize(ctx, hit.URL); err == nil && sum.Text != "" {
				line = sum.Text
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", hit.Title, hit.URL, strings.TrimSpace(line))
		count++
	}
	if count > 0 {
		r.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:     "review_context_search_done",
			Category: "review",
			Meta:     map[string]any{"resultCount": count},
		})
	}
	return b.String()
}
