package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"gemini-router/internal/config"
	"gemini-router/internal/metrics"
	"gemini-router/internal/models"
	"gemini-router/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Pipeline is the request pipeline behind the HTTP surface.
type Pipeline interface {
	Chat(ctx context.Context, req models.ChatRequest) (translator.ChatCompletionResponse, error)
	Ask(ctx context.Context, req models.ChatRequest) (translator.AnswerResponse, error)
	Models() []models.Model
}

type Server struct {
	cfg      config.Config
	pipeline Pipeline
	metrics  *metrics.Metrics
	app      *echo.Echo
	address  string
}

// New constructs an HTTP server wired with routing and middleware. A nil
// metrics collector disables the metrics endpoint.
func New(cfg config.Config, p Pipeline, m *metrics.Metrics) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	srv := &Server{
		cfg:      cfg,
		pipeline: p,
		metrics:  m,
		app:      e,
		address:  fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg)
	slog.Info("starting server", "addr", s.address, "default_model", s.cfg.Server.DefaultModel)

	// No write timeout: a request may spend several retry delays upstream.
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleRoot)
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleModels)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)
	s.app.POST("/ask", s.handleAsk)

	if s.metrics != nil && s.cfg.Metrics.On() {
		s.app.GET(s.cfg.Metrics.Path, echo.WrapHandler(s.metrics.Handler()))
	}
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.String(http.StatusOK, fmt.Sprintf("Gemini + OpenRouter proxy running (default model: %s)", s.cfg.Server.DefaultModel))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.Models(s.pipeline.Models()))
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	parsed, err := s.parseRequest(c)
	if err != nil {
		return err
	}

	resp, err := s.pipeline.Chat(c.Request().Context(), parsed.Request)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleAsk serves the legacy endpoint: flat query bodies get {answer},
// message bodies get a chat.completion object.
func (s *Server) handleAsk(c echo.Context) error {
	parsed, err := s.parseRequest(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if parsed.Shape == translator.ShapeQuery {
		resp, err := s.pipeline.Ask(ctx, parsed.Request)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, resp)
	}

	resp, err := s.pipeline.Chat(ctx, parsed.Request)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) parseRequest(c echo.Context) (translator.ParsedRequest, error) {
	body, err := readRequestBody(c)
	if err != nil {
		return translator.ParsedRequest{}, err
	}

	parsed, err := translator.ParseChatRequest(body, s.cfg.Server.DefaultModel)
	if err != nil {
		return translator.ParsedRequest{}, toHTTPError(err)
	}
	return parsed, nil
}

func readRequestBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
			}
		}
		return nil, requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("read request body: %v", err),
		}
	}
	return body, nil
}

func printStartupBanner(cfg config.Config) {
	host := "127.0.0.1"
	port := cfg.Server.Port
	fmt.Println()
	fmt.Println("gemini-router ready")
	fmt.Printf("Listening on http://%s:%d (default model: %s)\n", host, port, cfg.Server.DefaultModel)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /v1/models")
	fmt.Println("  POST /v1/chat/completions")
	fmt.Println("  POST /ask")
	if cfg.Metrics.On() {
		fmt.Printf("  GET  %s\n", cfg.Metrics.Path)
	}
	fmt.Println("Prefix a model with \"openrouter:\" to route through OpenRouter.")
	fmt.Printf("Example:\n  curl http://%s:%d/v1/chat/completions -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
