package translator

import (
	"fmt"
	"time"

	"gemini-router/internal/models"
)

// ChatCompletionResponse models the OpenAI-compatible chat response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice represents a single choice in the response payload.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message inside a choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnswerResponse is the legacy /ask reply for flat query bodies.
type AnswerResponse struct {
	Answer string `json:"answer"`
}

// ModelList mirrors the OpenAI /v1/models listing.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// ModelEntry is one listed model.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Formatter wraps answers into completion envelopes.
type Formatter struct {
	now func() time.Time
}

// NewFormatter returns a Formatter reading the time from now. A nil now uses time.Now.
func NewFormatter(now func() time.Time) Formatter {
	if now == nil {
		now = time.Now
	}
	return Formatter{now: now}
}

// Completion builds the chat.completion object. model must be the identifier
// as the client sent it, before any provider prefix was stripped.
func (f Formatter) Completion(model string, answer models.Answer) ChatCompletionResponse {
	ts := f.now()
	return ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", ts.UnixMilli()),
		Object:  "chat.completion",
		Created: ts.Unix(),
		Model:   model,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ResponseMessage{
					Role:    models.RoleAssistant,
					Content: answer.Text,
				},
				FinishReason: "stop",
			},
		},
	}
}

// Answer builds the legacy {answer} reply.
func (f Formatter) Answer(answer models.Answer) AnswerResponse {
	return AnswerResponse{Answer: answer.Text}
}

// Models converts configured models to the listing shape.
func Models(list []models.Model) ModelList {
	data := make([]ModelEntry, 0, len(list))
	for _, m := range list {
		data = append(data, ModelEntry{ID: m.ID, Object: "model", OwnedBy: m.Provider})
	}
	return ModelList{Object: "list", Data: data}
}
