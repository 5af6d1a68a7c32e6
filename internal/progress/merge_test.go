package progress

import (
	"testing"

	"github.com/voltlab/circuitreview/internal/artifact"
)

func passEvent(step string, pass int, ts int64) Event {
	return Event{
		Step: step,
		TS:   ts,
		Meta: map[string]any{"pass": pass, "passTotal": 5},
	}
}

func TestMergeCollapsesIdenticalStepAndPass(t *testing.T) {
	a := []Event{passEvent("vision_model_request", 1, 100), passEvent("vision_model_request", 2, 200)}
	b := []Event{passEvent("vision_model_request", 2, 200), passEvent("vision_model_request", 3, 300)}
	merged := Merge(a, b)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged events, got %d: %v", len(merged), merged)
	}
}

func TestMergeKeepsDistinctPasses(t *testing.T) {
	var batch []Event
	for i := 1; i <= 5; i++ {
		// Same step, same timestamp: distinct passes must survive.
		batch = append(batch, passEvent("vision_model_request", i, 1000))
	}
	merged := Merge(nil, batch)
	if len(merged) != 5 {
		t.Fatalf("distinct passes collapsed: expected 5, got %d", len(merged))
	}
}

func TestMergePreservesExistingOrder(t *testing.T) {
	a := []Event{passEvent("a", 1, 1), passEvent("b", 1, 2)}
	b := []Event{passEvent("c", 1, 3), passEvent("a", 1, 1)}
	merged := Merge(a, b)
	want := []string{"a", "b", "c"}
	if len(merged) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(merged))
	}
	for i, step := range want {
		if merged[i].Step != step {
			t.Fatalf("order broken at %d: expected %s, got %s", i, step, merged[i].Step)
		}
	}
}

func TestMergeUsesArtifactIdentity(t *testing.T) {
	a := []Event{{Step: "artifact_saved", TS: 100, Artifacts: []artifact.Ref{{Filename: "one.json"}}}}
	b := []Event{
		{Step: "artifact_saved", TS: 150, Artifacts: []artifact.Ref{{Filename: "one.json"}}},
		{Step: "artifact_saved", TS: 160, Artifacts: []artifact.Ref{{Filename: "two.json"}}},
	}
	merged := Merge(a, b)
	if len(merged) != 2 {
		t.Fatalf("artifact identity should dedupe across differing ts: got %d", len(merged))
	}
}

func TestMergeTimestampFallback(t *testing.T) {
	// No correlation fields at all: identical step and ts collapse, differing
	// low-order ts digits do not.
	a := []Event{{Step: "plain", TS: 1111}}
	b := []Event{{Step: "plain", TS: 1111}, {Step: "plain", TS: 1112}}
	merged := Merge(a, b)
	if len(merged) != 2 {
		t.Fatalf("expected ts-suffix fallback to keep 2 events, got %d", len(merged))
	}
}
