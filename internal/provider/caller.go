package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gemini-router/internal/metrics"
	"gemini-router/internal/models"
	"gemini-router/internal/retry"
	"gemini-router/internal/upstream"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "gemini-router/0.1"
)

// RetryPolicy bounds the number of attempts per generation request.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Caller performs upstream calls with bounded retry on rate limiting.
type Caller struct {
	client  *http.Client
	policy  RetryPolicy
	metrics *metrics.Metrics
}

// NewCaller constructs a Caller.
func NewCaller(client *http.Client, policy RetryPolicy, m *metrics.Metrics) (*Caller, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	return &Caller{client: client, policy: policy, metrics: m}, nil
}

type attempt struct {
	status int
	answer models.Answer
}

// rateLimited is the retry predicate: a 429 that also yielded no answer.
func rateLimited(a attempt) bool {
	return a.status == http.StatusTooManyRequests && a.answer.Absent
}

// Do performs call against p. It never fails: transport and parse
// problems surface as the provider's sentinel answer.
func (c *Caller) Do(ctx context.Context, p Provider, call Call) models.Answer {
	name := p.Kind().String()

	policy := retry.Policy[attempt]{
		MaxAttempts: c.policy.MaxAttempts,
		Delay:       c.policy.Delay,
		Retryable:   rateLimited,
		OnRetry: func(n int, last attempt) {
			c.metrics.RecordRetry(name)
		},
	}

	last, attempts := policy.Do(ctx, func(ctx context.Context, n int) attempt {
		return c.attempt(ctx, p, call)
	})

	if last.answer.Absent {
		c.metrics.RecordSentinel(name)
		slog.Warn("upstream returned no answer",
			"provider", name,
			"status", last.status,
			"attempts", attempts,
		)
	}
	return last.answer
}

func (c *Caller) attempt(ctx context.Context, p Provider, call Call) attempt {
	name := p.Kind().String()
	sentinels := p.Sentinels()

	start := time.Now()
	status, body, err := c.send(ctx, call)
	c.metrics.RecordAttempt(name, status, time.Since(start))

	if err != nil {
		slog.Error("upstream call failed", "provider", name, "error", err)
		return attempt{status: status, answer: models.Missing(sentinels.Failed)}
	}

	if !body.Parsed {
		slog.Warn("upstream returned invalid JSON",
			"provider", name,
			"status", status,
			"body", body.Snippet(500),
		)
	}

	if text, ok := p.Extract(body); ok {
		return attempt{status: status, answer: models.Found(text)}
	}
	return attempt{status: status, answer: models.Missing(sentinels.NoAnswer)}
}

func (c *Caller) send(ctx context.Context, call Call) (int, upstream.Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(call.Body))
	if err != nil {
		return 0, upstream.Body{}, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, upstream.Body{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(resp)
	if err != nil {
		return resp.StatusCode, upstream.Body{}, err
	}
	return resp.StatusCode, body, nil
}
