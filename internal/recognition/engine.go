package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voltlab/circuitreview/config"
	"github.com/voltlab/circuitreview/internal/artifact"
	"github.com/voltlab/circuitreview/internal/progress"
	"github.com/voltlab/circuitreview/internal/prompts"
	"github.com/voltlab/circuitreview/internal/provider"
	"github.com/voltlab/circuitreview/internal/search"
	"github.com/voltlab/circuitreview/internal/telemetry"
)

var engineTracer = otel.Tracer("circuitreview/recognition")

// defaultPassInstruction is the minimal recognition instruction used when no
// prompt file is configured in non-strict mode.
const defaultPassInstruction = `You are a circuit schematic recognition engine.
Look at the provided schematic image and output ONLY a JSON object of the form
{"components":[{"id","type","label","pins","params"}],"nets":[{"netId","connectedPins":[{"componentId","pin"}]}]}.
No prose, no markdown fences.`

const defaultConsolidateInstruction = `You are given several independent JSON recognition results of the SAME circuit schematic.
Merge them into one best JSON result of the same shape, preferring component and net interpretations that appear in the majority of results.
Output ONLY the merged JSON object.`

// Engine runs the fixed-count multi-pass recognition pipeline: independent
// vision passes over the same attachment, one consolidation call merging
// them, and optional datasheet enrichment of the merged graph.
type Engine struct {
	caller    *provider.Caller
	prompts   *prompts.Loader
	searcher  search.Searcher
	tracker   *progress.Tracker
	artifacts *artifact.Store
	tele      *telemetry.Telemetry
	logger    *log.Logger

	passes int
	topN   int
}

func NewEngine(
	caller *provider.Caller,
	loader *prompts.Loader,
	searcher search.Searcher,
	tracker *progress.Tracker,
	artifacts *artifact.Store,
	tele *telemetry.Telemetry,
	cfg config.RecognizeConfig,
) *Engine {
	passes := cfg.Passes
	if passes <= 0 {
		passes = 5
	}
	return &Engine{
		caller:    caller,
		prompts:   loader,
		searcher:  searcher,
		tracker:   tracker,
		artifacts: artifacts,
		tele:      tele,
		logger:    log.New(log.Writer(), "[RECOGNIZE] ", log.LstdFlags),
		passes:    passes,
		topN:      3,
	}
}

// Input describes one recognition request.
type Input struct {
	Attachment         provider.Attachment
	BaseURL            string
	AuthHeader         string
	VisionModel        string
	ConsolidationModel string
	Lang               string
	ProgressID         string
	EnrichDatasheets   bool
}

type passResult struct {
	pass  int
	graph CircuitGraph
}

// Recognize runs the full multi-pass pipeline. Passes are sequential and
// share no state; each is an isolated observation of the same schematic.
func (e *Engine) Recognize(ctx context.Context, in Input) (CircuitGraph, error) {
	ctx, span := engineTracer.Start(ctx, "recognition.recognize")
	defer span.End()
	span.SetAttributes(
		attribute.String("attachment.name", in.Attachment.Name),
		attribute.Int("passes", e.passes),
	)

	passPrompt, err := e.prompts.Load("recognize", prompts.KindPass, in.Lang, "")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CircuitGraph{}, fmt.Errorf("recognition prompt: %w", err)
	}
	if passPrompt == "" {
		passPrompt = defaultPassInstruction
	}

	var (
		results []passResult
		lastErr error
	)
	for i := 1; i <= e.passes; i++ {
		e.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:     "vision_model_request",
			Category: "recognition",
			Meta:     map[string]any{"pass": i, "passTotal": e.passes, "model": in.VisionModel},
		})

		graph, refs, err := e.runPass(ctx, in, passPrompt, i)
		e.tele.RecordRecognitionPass()

		responseMeta := map[string]any{"pass": i, "passTotal": e.passes}
		if err != nil {
			lastErr = err
			responseMeta["error"] = err.Error()
			e.logger.Printf("pass %d/%d failed: %v", i, e.passes, err)
		} else {
			components, nets := graph.Counts()
			responseMeta["components"] = components
			responseMeta["nets"] = nets
			results = append(results, passResult{pass: i, graph: graph})
		}
		e.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:      "vision_model_response",
			Category:  "recognition",
			Meta:      responseMeta,
			Artifacts: refs,
		})
	}

	if len(results) == 0 {
		span.SetStatus(codes.Error, "all passes failed")
		return CircuitGraph{}, fmt.Errorf("all %d recognition passes failed, last error: %w", e.passes, lastErr)
	}

	e.tracker.Push(ctx, in.ProgressID, progress.Event{
		Step:     "recognition_consolidation_start",
		Category: "recognition",
		Meta:     map[string]any{"resultCount": len(results)},
	})

	graph, consolidated := e.consolidate(ctx, in, results)
	if consolidated {
		components, nets := graph.Counts()
		e.tele.RecordConsolidation("done")
		e.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:     "recognition_consolidation_done",
			Category: "recognition",
			Meta:     map[string]any{"components": components, "nets": nets},
		})
	} else {
		best := bestPass(results)
		graph = best.graph
		e.tele.RecordConsolidation("fallback")
		e.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:     "recognition_consolidation_fallback",
			Category: "recognition",
			Meta:     map[string]any{"usedPass": best.pass},
		})
	}

	graph.Sanitize()

	if in.EnrichDatasheets && e.searcher != nil {
		e.enrich(ctx, in, &graph)
	}
	span.SetStatus(codes.Ok, "completed")
	return graph, nil
}

// runPass performs one isolated vision call and snapshots the raw response.
func (e *Engine) runPass(ctx context.Context, in Input, passPrompt string, pass int) (CircuitGraph, []artifact.Ref, error) {
	res, err := e.caller.Call(ctx, provider.Request{
		BaseURL:    in.BaseURL,
		Model:      in.VisionModel,
		AuthHeader: in.AuthHeader,
		Messages: []provider.Message{
			{Role: "system", Content: passPrompt},
			{Role: "user", Content: []provider.ContentPart{
				provider.TextPart("Recognize this circuit schematic. JSON only."),
				provider.ImagePart(in.Attachment.DataURL()),
			}},
		},
	})
	if err != nil {
		return CircuitGraph{}, nil, err
	}

	var refs []artifact.Ref
	if e.artifacts != nil {
		if ref, saveErr := e.artifacts.Save([]byte(res.Text), fmt.Sprintf("vision_pass_%d", pass), artifact.SaveOptions{Ext: ".json"}); saveErr == nil {
			refs = append(refs, ref)
		}
	}

	graph, err := ParseGraph(res.Text)
	if err != nil {
		return CircuitGraph{}, refs, err
	}
	return graph, refs, nil
}

// consolidate issues the merge call. Any failure, including an empty or
// unparseable merged graph, reports false so the caller falls back to the
// best single pass.
func (e *Engine) consolidate(ctx context.Context, in Input, results []passResult) (CircuitGraph, bool) {
	instruction, err := e.prompts.Load("recognize", prompts.KindPass, in.Lang, "consolidate")
	if err != nil || instruction == "" {
		if err != nil {
			e.logger.Printf("consolidation prompt unavailable, using built-in: %v", err)
		}
		instruction = defaultConsolidateInstruction
	}

	raw := make([]CircuitGraph, 0, len(results))
	for _, r := range results {
		raw = append(raw, r.graph)
	}
	serialized, err := json.Marshal(raw)
	if err != nil {
		e.logger.Printf("serialize pass results: %v", err)
		return CircuitGraph{}, false
	}

	model := in.ConsolidationModel
	if model == "" {
		model = in.VisionModel
	}
	res, err := e.caller.Call(ctx, provider.Request{
		BaseURL:    in.BaseURL,
		Model:      model,
		AuthHeader: in.AuthHeader,
		Messages: []provider.Message{
			{Role: "system", Content: instruction},
			{Role: "user", Content: string(serialized)},
		},
	})
	if err != nil {
		e.logger.Printf("consolidation call failed: %v", err)
		return CircuitGraph{}, false
	}

	graph, err := ParseGraph(res.Text)
	if err != nil {
		e.logger.Printf("consolidation result invalid: %v", err)
		return CircuitGraph{}, false
	}
	return graph, true
}

// bestPass picks the fallback result: the pass with the most recognized
// structure, ties resolved to the earliest pass so repeated failures select
// the same result.
func bestPass(results []passResult) passResult {
	best := results[0]
	for _, r := range results[1:] {
		if r.graph.Score() > best.graph.Score() {
			best = r
		}
	}
	return best
}

// enrich appends one datasheet lookup per IC-looking component. Lookups are
// strictly best-effort: a failed search just omits that component's entry.
func (e *Engine) enrich(ctx context.Context, in Input, graph *CircuitGraph) {
	for _, c := range graph.Components {
		if !looksLikeIC(c) {
			continue
		}
		query := strings.TrimSpace(strings.Join([]string{c.Label, c.Type, "datasheet"}, " "))
		hits, err := e.searcher.Search(ctx, query, 1)
		if err != nil || len(hits) == 0 {
			continue
		}
		graph.DatasheetMeta = append(graph.DatasheetMeta, DatasheetRef{
			ComponentID: c.ID,
			Title:       hits[0].Title,
			URL:         hits[0].URL,
		})
	}
	if len(graph.DatasheetMeta) > 0 {
		e.tracker.Push(ctx, in.ProgressID, progress.Event{
			Step:     "datasheet_enrichment_done",
			Category: "recognition",
			Meta:     map[string]any{"entries": len(graph.DatasheetMeta)},
		})
	}
}
