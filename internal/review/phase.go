package review

import "strings"

// Phase is the conversational state governing which instruction block the
// next model call receives.
type Phase string

const (
	// PhaseClarify constrains the model to ask clarifying questions only.
	PhaseClarify Phase = "clarify"
	// PhaseReview lets the model produce the final review report.
	PhaseReview Phase = "review"
)

// clarifyMarkers are the strings a clarifying-question turn is recognized
// by, one per supported prompt language.
var clarifyMarkers = []string{"【问题确认】", "[Clarifying Questions]"}

// DetectPhase decides the phase from history alone. The most recent
// assistant turn carrying a clarifying-question marker anchors the state:
// a non-empty user turn strictly after it means the questions were answered
// and the report can be produced. No marker, or an unanswered marker,
// stays in clarify. The default errs toward asking more, never toward a
// premature report.
func DetectPhase(history []Turn) Phase {
	markerIdx := -1
	for i, turn := range history {
		if turn.Role == "assistant" && hasClarifyMarker(turn.Content) {
			markerIdx = i
		}
	}
	if markerIdx < 0 {
		return PhaseClarify
	}
	for _, turn := range history[markerIdx+1:] {
		if turn.Role == "user" && strings.TrimSpace(turn.Content) != "" {
			return PhaseReview
		}
	}
	return PhaseClarify
}

func hasClarifyMarker(content string) bool {
	for _, m := range clarifyMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
