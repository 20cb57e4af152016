package openrouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"gemini-router/internal/config"
	"gemini-router/internal/models"
	"gemini-router/internal/provider"
	"gemini-router/internal/upstream"
)

const answerPath = "choices.0.message.content"

// Provider implements the OpenRouter chat-completions API.
type Provider struct {
	apiKey      string
	chatURL     string
	messageMode string
	headers     map[string]string
	sentinels   provider.Sentinels
}

// New creates an OpenRouter provider.
func New(cfg config.OpenRouterConfig, sentinels provider.Sentinels) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	mode := cfg.MessageMode
	switch mode {
	case "":
		mode = config.MessageModePassthrough
	case config.MessageModePassthrough, config.MessageModePrompt:
	default:
		return nil, fmt.Errorf("unsupported message mode %q", mode)
	}

	return &Provider{
		apiKey:      cfg.APIKey,
		chatURL:     baseURL + "/chat/completions",
		messageMode: mode,
		headers:     cfg.Headers,
		sentinels:   sentinels,
	}, nil
}

func (p *Provider) Kind() models.Kind {
	return models.KindOpenRouter
}

func (p *Provider) Sentinels() provider.Sentinels {
	return p.sentinels
}

// BuildCall sends either the original turns or the assembled prompt as a
// single user message, depending on the configured message mode.
func (p *Provider) BuildCall(model string, prompt models.Prompt) (provider.Call, error) {
	if strings.TrimSpace(model) == "" {
		return provider.Call{}, errors.New("model name must not be empty")
	}

	payload := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.messages(prompt),
	}
	if len(payload.Messages) == 0 {
		return provider.Call{}, errors.New("at least one message is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Call{}, fmt.Errorf("marshal payload: %w", err)
	}

	headers := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + p.apiKey

	return provider.Call{
		URL:     p.chatURL,
		Headers: headers,
		Body:    body,
	}, nil
}

func (p *Provider) messages(prompt models.Prompt) []openai.ChatCompletionMessage {
	if p.messageMode == config.MessageModePrompt {
		return []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt.Text},
		}
	}

	out := make([]openai.ChatCompletionMessage, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Extract reads choices[0].message.content.
func (p *Provider) Extract(body upstream.Body) (string, bool) {
	return body.String(answerPath)
}
