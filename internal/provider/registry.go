package provider

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gemini-router/internal/models"
	"gemini-router/internal/upstream"
)

// ErrUnknownProvider indicates the model identifier does not select a configured provider.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrDuplicateProvider indicates an attempt to register the same provider kind twice.
var ErrDuplicateProvider = errors.New("provider already registered")

// Model identifier prefixes.
const (
	PrefixOpenRouter = "openrouter:"
	PrefixGemini     = "gemini:"
)

// Call is a fully built upstream request.
type Call struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Sentinels are the placeholder answers of one provider.
type Sentinels struct {
	// NoAnswer is used when the response carried no extractable text.
	NoAnswer string
	// Failed is used when the call itself could not be completed.
	Failed string
}

// Provider builds requests for a single upstream and extracts its answers.
type Provider interface {
	Kind() models.Kind
	BuildCall(model string, prompt models.Prompt) (Call, error)
	Extract(body upstream.Body) (string, bool)
	Sentinels() Sentinels
}

// Registry maintains the configured providers by kind.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.Kind]Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[models.Kind]Provider),
	}
}

// Register adds p to the registry.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Kind()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Kind())
	}
	r.providers[p.Kind()] = p
	return nil
}

// Lookup returns the provider registered for kind.
func (r *Registry) Lookup(kind models.Kind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s is not configured", ErrUnknownProvider, kind)
	}
	return p, nil
}

// ResolveTarget maps a model identifier to its provider. "openrouter:" and
// "gemini:" prefixes are stripped; unprefixed identifiers go to Gemini.
// Any other "name:" prefix is rejected.
func ResolveTarget(modelID string) (models.Target, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return models.Target{}, fmt.Errorf("%w: no model requested and no default model configured", ErrUnknownProvider)
	}

	if rest, ok := strings.CutPrefix(modelID, PrefixOpenRouter); ok {
		if rest == "" {
			return models.Target{}, fmt.Errorf("%w: model name missing after %q", ErrUnknownProvider, PrefixOpenRouter)
		}
		return models.Target{Kind: models.KindOpenRouter, Model: rest}, nil
	}

	if rest, ok := strings.CutPrefix(modelID, PrefixGemini); ok {
		if rest == "" {
			return models.Target{}, fmt.Errorf("%w: model name missing after %q", ErrUnknownProvider, PrefixGemini)
		}
		return models.Target{Kind: models.KindGemini, Model: rest}, nil
	}

	if prefix, _, found := strings.Cut(modelID, ":"); found && !strings.Contains(prefix, "/") {
		return models.Target{}, fmt.Errorf("%w: unsupported model prefix %q (supported: %q, %q)",
			ErrUnknownProvider, prefix+":", PrefixOpenRouter, PrefixGemini)
	}

	return models.Target{Kind: models.KindGemini, Model: modelID}, nil
}
