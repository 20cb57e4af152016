package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gemini-router/internal/config"
	"gemini-router/internal/provider"
	geminiProvider "gemini-router/internal/provider/gemini"
	openrouterProvider "gemini-router/internal/provider/openrouter"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs providers from configuration and stores them in the registry.
// OpenRouter is only registered when it has an API key.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	gemini, err := geminiProvider.New(cfg.Gemini, provider.Sentinels{
		NoAnswer: cfg.Sentinel.GeminiNoAnswer,
		Failed:   cfg.Sentinel.GeminiFailed,
	})
	if err != nil {
		return fmt.Errorf("initialise gemini provider: %w", err)
	}
	if err := registry.Register(gemini); err != nil {
		return fmt.Errorf("register gemini provider: %w", err)
	}

	if cfg.OpenRouter.APIKey == "" {
		slog.Info("openrouter api key not set, openrouter: models are disabled")
		return nil
	}

	openrouter, err := openrouterProvider.New(cfg.OpenRouter, provider.Sentinels{
		NoAnswer: cfg.Sentinel.RouterNoAnswer,
		Failed:   cfg.Sentinel.RouterFailed,
	})
	if err != nil {
		return fmt.Errorf("initialise openrouter provider: %w", err)
	}
	if err := registry.Register(openrouter); err != nil {
		return fmt.Errorf("register openrouter provider: %w", err)
	}

	return nil
}

// NewHTTPClient returns a pooled client for outbound calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
