package recognition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Component is one recognized circuit element.
type Component struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Label  string         `json:"label,omitempty"`
	Pins   []string       `json:"pins,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// PinRef points at one pin of one component.
type PinRef struct {
	ComponentID string  `json:"componentId"`
	Pin         string  `json:"pin"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// Net is one electrical net connecting component pins.
type Net struct {
	NetID         string   `json:"netId"`
	ConnectedPins []PinRef `json:"connectedPins"`
	Confidence    float64  `json:"confidence,omitempty"`
}

// DatasheetRef is one enrichment entry appended after consolidation.
type DatasheetRef struct {
	ComponentID string `json:"componentId"`
	Title       string `json:"title"`
	URL         string `json:"url"`
}

// CircuitGraph is the structured output of recognition. After consolidation
// it is never mutated except to append DatasheetMeta during enrichment.
type CircuitGraph struct {
	Components    []Component    `json:"components"`
	Nets          []Net          `json:"nets"`
	Overlay       map[string]any `json:"overlay,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	DatasheetMeta []DatasheetRef `json:"datasheetMeta,omitempty"`
}

// Counts returns the component and net counts for event summaries.
func (g CircuitGraph) Counts() (int, int) {
	return len(g.Components), len(g.Nets)
}

// Score is the completeness measure used to pick the best pass when
// consolidation fails: more recognized structure wins.
func (g CircuitGraph) Score() int {
	return len(g.Components) + len(g.Nets)
}

// Empty reports whether the graph carries no recognized structure at all.
func (g CircuitGraph) Empty() bool {
	return len(g.Components) == 0 && len(g.Nets) == 0
}

// Sanitize drops connectedPins entries that reference a component id not
// present in Components. Upstream models only best-effort this invariant, so
// it is enforced here before anything consumes the graph. Nets left with no
// valid pins are dropped entirely.
func (g *CircuitGraph) Sanitize() {
	known := make(map[string]bool, len(g.Components))
	for _, c := range g.Components {
		known[c.ID] = true
	}
	nets := g.Nets[:0]
	for _, net := range g.Nets {
		pins := net.ConnectedPins[:0]
		for _, pin := range net.ConnectedPins {
			if known[pin.ComponentID] {
				pins = append(pins, pin)
			}
		}
		net.ConnectedPins = pins
		if len(net.ConnectedPins) > 0 {
			nets = append(nets, net)
		}
	}
	g.Nets = nets
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseGraph extracts a CircuitGraph from model output. Models wrap JSON in
// markdown fences or surround it with prose often enough that both are
// stripped before unmarshalling. A graph with no components and no nets is a
// parse failure, not a valid result.
func ParseGraph(text string) (CircuitGraph, error) {
	candidate := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(candidate, "{") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return CircuitGraph{}, fmt.Errorf("no JSON object in model output")
		}
		candidate = candidate[start : end+1]
	}

	var graph CircuitGraph
	if err := json.Unmarshal([]byte(candidate), &graph); err != nil {
		return CircuitGraph{}, fmt.Errorf("decode circuit graph: %w", err)
	}
	if graph.Empty() {
		return CircuitGraph{}, fmt.Errorf("model output contains no components or nets")
	}
	return graph, nil
}

var icTypeRe = regexp.MustCompile(`(?i)\b(ic|chip|opamp|op-amp|amplifier)\b`)

// looksLikeIC reports whether a component is worth a datasheet lookup: an
// integrated circuit recognized by its free-text type or label.
func looksLikeIC(c Component) bool {
	if icTypeRe.MatchString(c.Type) || icTypeRe.MatchString(c.Label) {
		return true
	}
	// Designators like U1/U2 are the conventional IC markers in schematics.
	id := strings.ToUpper(strings.TrimSpace(c.ID))
	return len(id) >= 2 && id[0] == 'U' && id[1] >= '0' && id[1] <= '9' && c.Label != ""
}
