package review

// Turn is one prior conversation entry. History is read-only input: the
// caller appends turns between requests, never mid-pipeline.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered prior dialogue, oldest first.
type Conversation []Turn

// ModelTarget identifies one upstream model for multi-model review.
type ModelTarget struct {
	BaseURL    string `json:"baseUrl"`
	AuthHeader string `json:"-"`
	Model      string `json:"model"`
}

// Output is the result of one review call.
type Output struct {
	Model    string `json:"model"`
	Phase    Phase  `json:"phase"`
	Markdown string `json:"markdown"`
}

// ModelResult is one branch of a multi-model fan-out. A failed branch
// carries its error here instead of failing its siblings.
type ModelResult struct {
	Target ModelTarget `json:"target"`
	Output Output      `json:"output"`
	Err    error       `json:"-"`
	Error  string      `json:"error,omitempty"`
}
