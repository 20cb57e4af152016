package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"gemini-router/internal/models"
)

// ErrInvalidInput marks requests from which no usable chat text can be derived.
var ErrInvalidInput = errors.New("invalid input")

var (
	errNoMessages   = errors.New("no messages found")
	errNoUserText   = errors.New("no user text found")
	errMissingInput = errors.New(`request must include one of "messages", "query" or "prompt"`)
)

var validate = validator.New()

// Shape records which inbound form a request used.
type Shape int

const (
	// ShapeMessages is the OpenAI-style {model, messages} body.
	ShapeMessages Shape = iota
	// ShapeQuery is the flat {query} or {prompt} body.
	ShapeQuery
)

// ParsedRequest is the normalized inbound request plus the shape it arrived in.
type ParsedRequest struct {
	Request models.ChatRequest
	Shape   Shape
}

type rawRequest struct {
	Model    json.RawMessage `json:"model"`
	Messages json.RawMessage `json:"messages"`
	Query    json.RawMessage `json:"query"`
	Prompt   json.RawMessage `json:"prompt"`
}

// ParseChatRequest normalizes a loosely typed request body. It accepts a
// messages array whose content is plain text or an array of text parts,
// and falls back to a flat query or prompt field. An absent model resolves
// to defaultModel.
func ParseChatRequest(body []byte, defaultModel string) (ParsedRequest, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ParsedRequest{}, invalid(errors.New("request body is required"))
	}

	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return ParsedRequest{}, invalid(fmt.Errorf("invalid JSON payload: %v", err))
	}

	model, err := optionalString(raw.Model)
	if err != nil {
		return ParsedRequest{}, invalid(fmt.Errorf("model: %v", err))
	}
	// Routing trims the identifier; the request keeps it as sent so the
	// response echoes it verbatim.
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	parsed := ParsedRequest{Request: models.ChatRequest{Model: model}}

	switch {
	case present(raw.Messages):
		msgs, err := decodeMessages(raw.Messages)
		if err != nil {
			return ParsedRequest{}, invalid(err)
		}
		parsed.Request.Messages = msgs
		parsed.Shape = ShapeMessages
	default:
		text, err := firstText(raw.Query, raw.Prompt)
		if err != nil {
			return ParsedRequest{}, invalid(err)
		}
		parsed.Request.Messages = []models.Message{{Role: models.RoleUser, Content: text}}
		parsed.Shape = ShapeQuery
	}

	if err := validateRequest(parsed.Request); err != nil {
		return ParsedRequest{}, invalid(err)
	}
	return parsed, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func optionalString(raw json.RawMessage) (string, error) {
	if !present(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return s, nil
}

func firstText(candidates ...json.RawMessage) (string, error) {
	for _, raw := range candidates {
		text, err := optionalString(raw)
		if err != nil {
			return "", err
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return trimmed, nil
		}
	}
	return "", errMissingInput
}

func decodeMessages(raw json.RawMessage) ([]models.Message, error) {
	var msgs []ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, errNoMessages
	}

	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func validateRequest(req models.ChatRequest) error {
	for i, msg := range req.Messages {
		if err := validate.Struct(msg); err != nil {
			return fmt.Errorf("message[%d]: unsupported role %q", i, msg.Role)
		}
	}
	if text, ok := req.LastUserText(); !ok || strings.TrimSpace(text) == "" {
		return errNoUserText
	}
	return nil
}

// ChatMessage captures a single inbound message.
type ChatMessage struct {
	Role    string
	Content string
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = strings.TrimSpace(raw.Role)
	m.Content = content
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if !present(raw) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "" && segment.Type != "text" {
				return "", fmt.Errorf("content segment type %q not supported", segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", errors.New("unsupported content structure")
}
