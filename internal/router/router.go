package router

import (
	"context"
	"errors"
	"fmt"

	"gemini-router/internal/models"
	"gemini-router/internal/prompt"
	"gemini-router/internal/provider"
	"gemini-router/internal/translator"
)

// Enricher produces search context for the latest user utterance.
type Enricher interface {
	Enrich(ctx context.Context, query string) models.SearchContext
}

// Router runs the per-request pipeline: enrich, assemble, dispatch, format.
type Router struct {
	enricher   Enricher
	dispatcher *provider.Dispatcher
	formatter  translator.Formatter
	exposed    []string
}

// New constructs a router. exposed lists the model identifiers reported by Models.
func New(enricher Enricher, dispatcher *provider.Dispatcher, formatter translator.Formatter, exposed []string) (*Router, error) {
	if enricher == nil {
		return nil, errors.New("enricher must not be nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher must not be nil")
	}
	return &Router{
		enricher:   enricher,
		dispatcher: dispatcher,
		formatter:  formatter,
		exposed:    exposed,
	}, nil
}

// Answer runs search enrichment and the upstream call for req. The model
// is resolved first so unknown prefixes fail before any outbound call.
func (r *Router) Answer(ctx context.Context, req models.ChatRequest) (models.Answer, error) {
	if _, _, err := r.dispatcher.Resolve(req.Model); err != nil {
		return models.Answer{}, err
	}

	query, ok := req.LastUserText()
	if !ok {
		return models.Answer{}, fmt.Errorf("%w: no user text found", translator.ErrInvalidInput)
	}

	search := r.enricher.Enrich(ctx, query)
	p := prompt.Build(req, search)

	answer, err := r.dispatcher.Dispatch(ctx, req.Model, p)
	if err != nil {
		return models.Answer{}, fmt.Errorf("dispatch model %q: %w", req.Model, err)
	}
	return answer, nil
}

// Chat answers req and wraps the result in a chat.completion envelope that
// echoes the requested model identifier.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest) (translator.ChatCompletionResponse, error) {
	answer, err := r.Answer(ctx, req)
	if err != nil {
		return translator.ChatCompletionResponse{}, err
	}
	return r.formatter.Completion(req.Model, answer), nil
}

// Ask answers req in the legacy {answer} shape.
func (r *Router) Ask(ctx context.Context, req models.ChatRequest) (translator.AnswerResponse, error) {
	answer, err := r.Answer(ctx, req)
	if err != nil {
		return translator.AnswerResponse{}, err
	}
	return r.formatter.Answer(answer), nil
}

// Models lists the exposed model identifiers with their owning provider.
func (r *Router) Models() []models.Model {
	return Describe(r.exposed)
}

// Describe pairs each model identifier with its owning provider. Identifiers
// with an unsupported prefix are reported as unknown.
func Describe(ids []string) []models.Model {
	out := make([]models.Model, 0, len(ids))
	for _, id := range ids {
		owner := "unknown"
		if target, err := provider.ResolveTarget(id); err == nil {
			owner = target.Kind.String()
		}
		out = append(out, models.Model{ID: id, Provider: owner})
	}
	return out
}
