package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gemini-router/internal/config"
	"gemini-router/internal/metrics"
)

const placeholder = "(no search results)"

func newEnricher(url, key string, m *metrics.Metrics) *Enricher {
	return New(config.SearchConfig{APIKey: key, URL: url, MaxResults: 3}, placeholder, http.DefaultClient, m)
}

func TestEnrichWithoutKey(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	got := newEnricher(server.URL, "", nil).Enrich(context.Background(), "anything")

	if got.Render() != placeholder {
		t.Errorf("expected placeholder, got %q", got.Render())
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("search must not be called without a credential")
	}
}

func TestEnrichRendersResults(t *testing.T) {
	var gotReq searchPayload
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"results":[{"title":"Paris","content":"Capital of France"}]}`))
	}))
	defer server.Close()

	m := metrics.New(nil)
	got := newEnricher(server.URL, "tv-key", m).Enrich(context.Background(), "capital of France")

	if got.Render() != "- Paris\nCapital of France" {
		t.Errorf("unexpected context %q", got.Render())
	}
	if gotAuth != "Bearer tv-key" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotReq.Query != "capital of France" || gotReq.MaxResults != 3 {
		t.Errorf("unexpected payload %+v", gotReq)
	}
}

func TestEnrichCapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"title":"a","content":"1"},{"title":"b","content":"2"},
			{"title":"c","content":"3"},{"title":"d","content":"4"}]}`))
	}))
	defer server.Close()

	got := newEnricher(server.URL, "k", nil).Enrich(context.Background(), "q")

	if len(got.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got.Results))
	}
	if got.Render() != "- a\n1\n\n- b\n2\n\n- c\n3" {
		t.Errorf("unexpected render %q", got.Render())
	}
}

func TestEnrichDegradesToPlaceholder(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome string
	}{
		{name: "invalid json", status: http.StatusOK, body: "oops", outcome: metrics.SearchError},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", outcome: metrics.SearchError},
		{name: "no results", status: http.StatusOK, body: `{"results":[]}`, outcome: metrics.SearchEmpty},
		{name: "error json", status: http.StatusUnauthorized, body: `{"detail":"bad key"}`, outcome: metrics.SearchEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			reg := prometheus.NewRegistry()
			got := newEnricher(server.URL, "k", metrics.New(reg)).Enrich(context.Background(), "q")

			if got.Render() != placeholder {
				t.Errorf("expected placeholder, got %q", got.Render())
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("search must not be retried, got %d calls", n)
			}
			want := fmt.Sprintf(`
# HELP gemini_router_search_requests_total Search enrichment outcomes
# TYPE gemini_router_search_requests_total counter
gemini_router_search_requests_total{outcome=%q} 1
`, tt.outcome)
			if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "gemini_router_search_requests_total"); err != nil {
				t.Errorf("unexpected search outcome metrics: %v", err)
			}
		})
	}
}

func TestEnrichTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	got := newEnricher(url, "k", nil).Enrich(context.Background(), "q")
	if got.Render() != placeholder {
		t.Errorf("expected placeholder after transport failure, got %q", got.Render())
	}
}
