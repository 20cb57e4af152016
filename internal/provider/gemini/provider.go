package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gemini-router/internal/config"
	"gemini-router/internal/models"
	"gemini-router/internal/provider"
	"gemini-router/internal/upstream"
)

const (
	modelPathPrefix = "models/"
	answerPath      = "candidates.0.content.parts.0.text"
)

// harmCategories are relaxed to BLOCK_NONE on every request.
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Provider targets the generateContent endpoint.
type Provider struct {
	apiKey        string
	baseURL       string
	apiVersion    string
	modelVersions map[string]string
	sentinels     provider.Sentinels
}

// New constructs a Gemini provider.
func New(cfg config.GeminiConfig, sentinels provider.Sentinels) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if cfg.APIVersion == "" {
		return nil, errors.New("api version must not be empty")
	}

	versions := make(map[string]string, len(cfg.ModelVersions))
	for model, version := range cfg.ModelVersions {
		versions[qualify(model)] = version
	}

	return &Provider{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		apiVersion:    cfg.APIVersion,
		modelVersions: versions,
		sentinels:     sentinels,
	}, nil
}

func (p *Provider) Kind() models.Kind {
	return models.KindGemini
}

func (p *Provider) Sentinels() provider.Sentinels {
	return p.sentinels
}

type generateRequest struct {
	Contents       []content       `json:"contents"`
	SafetySettings []safetySetting `json:"safetySettings"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// BuildCall renders the assembled prompt as a single user turn.
func (p *Provider) BuildCall(model string, prompt models.Prompt) (provider.Call, error) {
	name := qualify(model)
	if name == modelPathPrefix {
		return provider.Call{}, errors.New("model name must not be empty")
	}

	payload := generateRequest{
		Contents: []content{
			{Role: models.RoleUser, Parts: []part{{Text: prompt.Text}}},
		},
		SafetySettings: make([]safetySetting, 0, len(harmCategories)),
	}
	for _, category := range harmCategories {
		payload.SafetySettings = append(payload.SafetySettings, safetySetting{
			Category:  category,
			Threshold: "BLOCK_NONE",
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Call{}, fmt.Errorf("marshal payload: %w", err)
	}

	return provider.Call{
		URL:  p.endpoint(name),
		Body: body,
	}, nil
}

// Extract reads candidates[0].content.parts[0].text.
func (p *Provider) Extract(body upstream.Body) (string, bool) {
	return body.String(answerPath)
}

// APIVersion returns the API version used for model.
func (p *Provider) APIVersion(model string) string {
	if v, ok := p.modelVersions[qualify(model)]; ok {
		return v
	}
	return p.apiVersion
}

func (p *Provider) endpoint(name string) string {
	return fmt.Sprintf("%s/%s/%s:generateContent?key=%s",
		p.baseURL, p.APIVersion(name), name, url.QueryEscape(p.apiKey))
}

// qualify prefixes bare model names with "models/".
func qualify(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(model, modelPathPrefix) {
		return model
	}
	return modelPathPrefix + model
}
