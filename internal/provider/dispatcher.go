package provider

import (
	"context"
	"errors"
	"fmt"

	"gemini-router/internal/models"
)

// Dispatcher routes a prompt to the provider selected by the model identifier.
type Dispatcher struct {
	registry *Registry
	caller   *Caller
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(registry *Registry, caller *Caller) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if caller == nil {
		return nil, errors.New("caller must not be nil")
	}
	return &Dispatcher{registry: registry, caller: caller}, nil
}

// Resolve returns the configured provider and target for modelID.
func (d *Dispatcher) Resolve(modelID string) (Provider, models.Target, error) {
	target, err := ResolveTarget(modelID)
	if err != nil {
		return nil, models.Target{}, err
	}

	p, err := d.registry.Lookup(target.Kind)
	if err != nil {
		return nil, models.Target{}, err
	}
	return p, target, nil
}

// Prepare resolves modelID and builds the upstream call without sending it.
func (d *Dispatcher) Prepare(modelID string, prompt models.Prompt) (Provider, Call, error) {
	p, target, err := d.Resolve(modelID)
	if err != nil {
		return nil, Call{}, err
	}

	call, err := p.BuildCall(target.Model, prompt)
	if err != nil {
		return nil, Call{}, fmt.Errorf("build %s request: %w", target.Kind, err)
	}
	return p, call, nil
}

// Dispatch sends prompt upstream and returns the extracted answer. Only
// routing and request-building problems are returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, modelID string, prompt models.Prompt) (models.Answer, error) {
	p, call, err := d.Prepare(modelID, prompt)
	if err != nil {
		return models.Answer{}, err
	}
	return d.caller.Do(ctx, p, call), nil
}
