package models

import "strings"

// Chat roles accepted on the inbound surface.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversational message in the unified schema.
type Message struct {
	Role    string `validate:"oneof=system user assistant"`
	Content string
}

// ChatRequest is the normalized form of an inbound chat request.
type ChatRequest struct {
	// Model is the identifier exactly as requested, or the configured default.
	Model    string
	Messages []Message
}

// SystemPrompt returns the content of the first system message.
func (r ChatRequest) SystemPrompt() string {
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// LastUserText returns the content of the most recent user message.
func (r ChatRequest) LastUserText() (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content, true
		}
	}
	return "", false
}

// History returns every non-system message in original order.
func (r ChatRequest) History() []Message {
	out := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// SearchResult is a single hit returned by the search provider.
type SearchResult struct {
	Title   string
	Content string
}

// SearchContext is the ordered set of results folded into a prompt.
// An empty context renders as Placeholder.
type SearchContext struct {
	Results     []SearchResult
	Placeholder string
}

// Render joins the results as "- title\ncontent" blocks separated by a blank line.
func (c SearchContext) Render() string {
	if len(c.Results) == 0 {
		return c.Placeholder
	}
	blocks := make([]string, 0, len(c.Results))
	for _, r := range c.Results {
		blocks = append(blocks, "- "+r.Title+"\n"+r.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// Kind enumerates the upstream generation providers.
type Kind int

const (
	KindGemini Kind = iota + 1
	KindOpenRouter
)

func (k Kind) String() string {
	switch k {
	case KindGemini:
		return "gemini"
	case KindOpenRouter:
		return "openrouter"
	default:
		return "unknown"
	}
}

// Target is the resolved provider for a request. Model carries the
// upstream model name with any routing prefix removed.
type Target struct {
	Kind  Kind
	Model string
}

// Prompt is what gets handed to a provider: the assembled single-text
// prompt plus the original message list for providers that take turns.
type Prompt struct {
	Text     string
	Messages []Message
}

// Answer is the text extracted from an upstream response. Absent marks
// the sentinel case, where no usable text came back.
type Answer struct {
	Text   string
	Absent bool
}

// Found wraps extracted upstream text.
func Found(text string) Answer {
	return Answer{Text: text}
}

// Missing returns the sentinel answer carrying the placeholder text.
func Missing(placeholder string) Answer {
	return Answer{Text: placeholder, Absent: true}
}

// Model identifies a model exposed by GET /v1/models.
type Model struct {
	ID       string
	Provider string
}
