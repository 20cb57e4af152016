package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gemini-router/internal/config"
	"gemini-router/internal/models"
	"gemini-router/internal/provider"
	"gemini-router/internal/provider/gemini"
	"gemini-router/internal/provider/openrouter"
	"gemini-router/internal/search"
	"gemini-router/internal/translator"
)

const (
	defaultModel    = "models/gemini-2.5-flash-lite"
	noSearchResults = "(no search results)"
	geminiNoAnswer  = "(no answer was returned by Gemini)"
)

// stubUpstream records the bodies it receives and replies with a fixed payload.
type stubUpstream struct {
	server *httptest.Server
	calls  int32
	path   atomic.Value
	body   atomic.Value
}

func newStubUpstream(t *testing.T, status int, reply string) *stubUpstream {
	t.Helper()
	s := &stubUpstream{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		s.path.Store(r.URL.Path)
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		s.body.Store(payload)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubUpstream) Calls() int32 { return atomic.LoadInt32(&s.calls) }

func (s *stubUpstream) Body() map[string]any {
	v, _ := s.body.Load().(map[string]any)
	return v
}

func (s *stubUpstream) Path() string {
	v, _ := s.path.Load().(string)
	return v
}

type pipeline struct {
	router     *Router
	gemini     *stubUpstream
	aggregator *stubUpstream
	search     *stubUpstream
}

func newPipeline(t *testing.T, geminiReply string, searchKey string) pipeline {
	t.Helper()

	g := newStubUpstream(t, http.StatusOK, geminiReply)
	or := newStubUpstream(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"from openrouter"}}]}`)
	s := newStubUpstream(t, http.StatusOK, `{"results":[{"title":"Paris","content":"Capital of France"}]}`)

	cfg := config.Config{
		Gemini:     config.GeminiConfig{APIKey: "g-key", BaseURL: g.server.URL},
		OpenRouter: config.OpenRouterConfig{APIKey: "or-key", BaseURL: or.server.URL},
		Search:     config.SearchConfig{APIKey: searchKey, URL: s.server.URL},
	}
	config.ApplyDefaults(&cfg)

	registry := provider.NewRegistry()
	gp, err := gemini.New(cfg.Gemini, provider.Sentinels{NoAnswer: geminiNoAnswer, Failed: "(failed)"})
	if err != nil {
		t.Fatalf("gemini provider: %v", err)
	}
	op, err := openrouter.New(cfg.OpenRouter, provider.Sentinels{NoAnswer: "(none)", Failed: "(failed)"})
	if err != nil {
		t.Fatalf("openrouter provider: %v", err)
	}
	_ = registry.Register(gp)
	_ = registry.Register(op)

	caller, err := provider.NewCaller(http.DefaultClient, provider.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	dispatcher, err := provider.NewDispatcher(registry, caller)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	enricher := search.New(cfg.Search, noSearchResults, http.DefaultClient, nil)
	r, err := New(enricher, dispatcher, translator.NewFormatter(nil), []string{defaultModel, "openrouter:openai/gpt-4o-mini", "claude:x"})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return pipeline{router: r, gemini: g, aggregator: or, search: s}
}

func geminiPromptText(t *testing.T, body map[string]any) string {
	t.Helper()
	contents, _ := body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected one content entry, got %v", body["contents"])
	}
	parts, _ := contents[0].(map[string]any)["parts"].([]any)
	text, _ := parts[0].(map[string]any)["text"].(string)
	return text
}

// searchSection returns the body of the search results section of an assembled prompt.
func searchSection(assembled string) string {
	_, rest, ok := strings.Cut(assembled, "\n\nSearch results:\n")
	if !ok {
		return ""
	}
	body, _, _ := strings.Cut(rest, "\n\nConversation history:\n")
	return body
}

func userRequest(model, text string) models.ChatRequest {
	return models.ChatRequest{
		Model:    model,
		Messages: []models.Message{{Role: models.RoleUser, Content: text}},
	}
}

func TestChatWithoutSearchCredential(t *testing.T) {
	p := newPipeline(t, `{"candidates":[{"content":{"parts":[{"text":"Paris is the capital."}]}}]}`, "")

	resp, err := p.router.Chat(context.Background(), userRequest(defaultModel, "What is the capital of France?"))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if p.search.Calls() != 0 {
		t.Errorf("search must not run without a credential, got %d calls", p.search.Calls())
	}
	if p.gemini.Calls() != 1 {
		t.Errorf("expected one generation call, got %d", p.gemini.Calls())
	}
	if got := searchSection(geminiPromptText(t, p.gemini.Body())); got != noSearchResults {
		t.Errorf("expected placeholder in prompt, got %q", got)
	}
	if resp.Choices[0].Message.Content != "Paris is the capital." {
		t.Errorf("unexpected content %q", resp.Choices[0].Message.Content)
	}
	if resp.Model != defaultModel {
		t.Errorf("expected default model echoed, got %q", resp.Model)
	}
	if p.gemini.Path() != "/v1beta/models/gemini-2.5-flash-lite:generateContent" {
		t.Errorf("unexpected gemini path %q", p.gemini.Path())
	}
}

func TestChatWithSearchContext(t *testing.T) {
	p := newPipeline(t, `{"candidates":[{"content":{"parts":[{"text":"Paris"}]}}]}`, "tv-key")

	if _, err := p.router.Chat(context.Background(), userRequest(defaultModel, "capital of France?")); err != nil {
		t.Fatalf("chat: %v", err)
	}

	if p.search.Calls() != 1 {
		t.Errorf("expected one search call, got %d", p.search.Calls())
	}
	if got := p.search.Body()["query"]; got != "capital of France?" {
		t.Errorf("search must use the latest user text, got %v", got)
	}
	if got := searchSection(geminiPromptText(t, p.gemini.Body())); got != "- Paris\nCapital of France" {
		t.Errorf("unexpected search section %q", got)
	}
}

func TestChatEmptyCandidatesYieldsSentinel(t *testing.T) {
	p := newPipeline(t, `{"candidates":[]}`, "")

	resp, err := p.router.Chat(context.Background(), userRequest(defaultModel, "hi"))
	if err != nil {
		t.Fatalf("sentinel must not be an error: %v", err)
	}
	if resp.Choices[0].Message.Content != geminiNoAnswer {
		t.Errorf("expected sentinel, got %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("unexpected finish reason %q", resp.Choices[0].FinishReason)
	}
}

func TestChatOpenRouterStripsPrefix(t *testing.T) {
	p := newPipeline(t, `{}`, "")

	req := models.ChatRequest{
		Model: "openrouter:openai/gpt-4o-mini",
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleUser, Content: "hello"},
		},
	}
	resp, err := p.router.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if got := p.aggregator.Body()["model"]; got != "openai/gpt-4o-mini" {
		t.Errorf("expected stripped model upstream, got %v", got)
	}
	if msgs, _ := p.aggregator.Body()["messages"].([]any); len(msgs) != 2 {
		t.Errorf("expected passthrough messages, got %v", p.aggregator.Body()["messages"])
	}
	if resp.Model != "openrouter:openai/gpt-4o-mini" {
		t.Errorf("expected original identifier echoed, got %q", resp.Model)
	}
	if resp.Choices[0].Message.Content != "from openrouter" {
		t.Errorf("unexpected content %q", resp.Choices[0].Message.Content)
	}
	if p.gemini.Calls() != 0 {
		t.Error("gemini must not be called for openrouter models")
	}
}

func TestChatEchoesPaddedModelVerbatim(t *testing.T) {
	p := newPipeline(t, `{}`, "")

	const requested = " openrouter:openai/gpt-4o-mini "
	resp, err := p.router.Chat(context.Background(), userRequest(requested, "hello"))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if got := p.aggregator.Body()["model"]; got != "openai/gpt-4o-mini" {
		t.Errorf("expected trimmed model upstream, got %v", got)
	}
	if resp.Model != requested {
		t.Errorf("expected model echoed verbatim, got %q", resp.Model)
	}
}

func TestChatUnknownPrefixFailsBeforeSearch(t *testing.T) {
	p := newPipeline(t, `{}`, "tv-key")

	_, err := p.router.Chat(context.Background(), userRequest("claude:3-opus", "hi"))
	if !errors.Is(err, provider.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if p.search.Calls() != 0 || p.gemini.Calls() != 0 {
		t.Error("no outbound call may happen for an unknown prefix")
	}
}

func TestAsk(t *testing.T) {
	p := newPipeline(t, `{"candidates":[{"content":{"parts":[{"text":"42"}]}}]}`, "")

	resp, err := p.router.Ask(context.Background(), userRequest(defaultModel, "meaning of life"))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Answer != "42" {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
}

func TestModels(t *testing.T) {
	p := newPipeline(t, `{}`, "")

	got := p.router.Models()
	want := []models.Model{
		{ID: defaultModel, Provider: "gemini"},
		{ID: "openrouter:openai/gpt-4o-mini", Provider: "openrouter"},
		{ID: "claude:x", Provider: "unknown"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d models, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("model[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
