// Package search enriches prompts with web-search results. Every failure
// degrades to the placeholder context; nothing here is retried.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"gemini-router/internal/config"
	"gemini-router/internal/metrics"
	"gemini-router/internal/models"
	"gemini-router/internal/upstream"
)

const userAgent = "gemini-router/0.1"

// Enricher issues a single search call per request.
type Enricher struct {
	apiKey      string
	url         string
	maxResults  int
	placeholder string
	client      *http.Client
	metrics     *metrics.Metrics
}

// New constructs an Enricher. An empty API key disables searching.
func New(cfg config.SearchConfig, placeholder string, client *http.Client, m *metrics.Metrics) *Enricher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Enricher{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		url:         cfg.URL,
		maxResults:  cfg.MaxResults,
		placeholder: placeholder,
		client:      client,
		metrics:     m,
	}
}

// Enabled reports whether a search credential is configured.
func (e *Enricher) Enabled() bool {
	return e.apiKey != ""
}

type searchPayload struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Enrich searches for query and returns the results as context. It never fails.
func (e *Enricher) Enrich(ctx context.Context, query string) models.SearchContext {
	empty := models.SearchContext{Placeholder: e.placeholder}
	if !e.Enabled() {
		e.metrics.RecordSearch(metrics.SearchSkipped)
		return empty
	}

	results, err := e.search(ctx, query)
	if err != nil {
		slog.Warn("search failed, continuing without context", "error", err)
		e.metrics.RecordSearch(metrics.SearchError)
		return empty
	}
	if len(results) == 0 {
		e.metrics.RecordSearch(metrics.SearchEmpty)
		return empty
	}

	e.metrics.RecordSearch(metrics.SearchOK)
	return models.SearchContext{Results: results, Placeholder: e.placeholder}
}

func (e *Enricher) search(ctx context.Context, query string) ([]models.SearchResult, error) {
	body, err := json.Marshal(searchPayload{Query: query, MaxResults: e.maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := upstream.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	if !raw.Parsed {
		return nil, fmt.Errorf("search response status %d is not JSON: %q", resp.StatusCode, raw.Snippet(200))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		slog.Warn("search returned error status", "status", resp.StatusCode)
	}

	items := raw.Array("results")
	results := make([]models.SearchResult, 0, len(items))
	for _, item := range items {
		if len(results) == e.maxResults {
			break
		}
		results = append(results, models.SearchResult{
			Title:   item.Get("title").String(),
			Content: item.Get("content").String(),
		})
	}
	return results, nil
}
