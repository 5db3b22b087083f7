// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package promptlab wires the PromptLab HTTP service together.
//
// New builds every component from a config.PromptLabConfig: the logger,
// the badger-backed experiment store, the provider router behind a
// retrying client, the runner, Prometheus metrics, optional stdout
// tracing and the Gin router. The lab's state is loaded from the store
// before New returns.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := promptlab.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package promptlab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/AleutianAI/PromptLab/pkg/logging"
	"github.com/AleutianAI/PromptLab/services/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/config"
	"github.com/AleutianAI/PromptLab/services/promptlab/datatypes"
	"github.com/AleutianAI/PromptLab/services/promptlab/lab"
	"github.com/AleutianAI/PromptLab/services/promptlab/observability"
	"github.com/AleutianAI/PromptLab/services/promptlab/routes"
	"github.com/AleutianAI/PromptLab/services/promptlab/runner"
	"github.com/AleutianAI/PromptLab/services/promptlab/storage/badger"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "promptlab"

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the PromptLab server lifecycle.
//
// # Thread Safety
//
// Run blocks and is called once. Shutdown may be called from another
// goroutine to stop it; Router and Lab are read-only after New.
type Service interface {
	// Run serves HTTP on the configured port until Shutdown or a listener
	// error. A clean Shutdown returns nil.
	Run() error

	// Shutdown stops the server, waits for in-flight requests up to the
	// context deadline, then closes the store, tracer and logger.
	Shutdown(ctx context.Context) error

	// Router returns the Gin engine with every route registered.
	Router() *gin.Engine

	// Lab returns the application service behind the routes.
	Lab() *lab.Lab
}

// Options replace production collaborators. The zero value, or nil, uses
// the configured providers and writes logs to stderr and traces to stdout.
type Options struct {
	// Client replaces the provider router and retry wrapper.
	Client llm.Client

	// LogOutput replaces stderr for console logs.
	LogOutput io.Writer

	// TraceOutput replaces stdout for exported spans.
	TraceOutput io.Writer
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config   config.PromptLabConfig
	opts     Options
	logger   *logging.Logger
	store    *store.BadgerStore
	registry *prometheus.Registry
	metrics  *observability.Metrics
	lab      *lab.Lab
	router   *gin.Engine
	server   *http.Server

	tracerCleanup func(context.Context)
}

// New creates a ready-to-run Service.
//
// # Description
//
//  1. Validates cfg and creates the logger, installing it as slog's default.
//  2. Opens the badger store (in memory when Storage.InMemory).
//  3. Creates the metrics registry and, when enabled, the lab metrics.
//  4. Initializes stdout tracing when Telemetry.Tracing.
//  5. Builds the generation client and runner, then loads the lab.
//  6. Sets up the Gin router with otelgin and every route.
//
// Anything opened before a failing step is closed again.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Invalid config, store open failure or lab load failure.
func New(cfg config.PromptLabConfig, opts *Options) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &service{config: cfg}
	if opts != nil {
		s.opts = *opts
	}

	s.initLogger()

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open experiment store: %w", err)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Telemetry.Metrics {
		s.metrics = observability.NewMetrics(s.registry)
	}

	if cfg.Telemetry.Tracing {
		cleanup, err := s.initTracer()
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	client := s.opts.Client
	if client == nil {
		client = s.buildClient()
	}
	r := runner.New(client, runner.Config{
		Timeout: cfg.Generation.Timeout,
		Metrics: s.metrics,
		Logger:  s.logger.Slog(),
	})

	s.lab = lab.New(lab.Config{
		Store:   s.store,
		Runner:  r,
		Metrics: s.metrics,
		Logger:  s.logger.Slog(),
	})
	if err := s.lab.Load(context.Background()); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// Run implements Service.
func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Starting PromptLab server", "port", s.config.Server.Port,
		"data_dir", s.config.Storage.DataDir, "in_memory", s.config.Storage.InMemory)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.cleanup()
	return err
}

// Shutdown implements Service.
func (s *service) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.cleanup()
	return err
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Lab() *lab.Lab {
	return s.lab
}

// =============================================================================
// Initialization
// =============================================================================

func (s *service) initLogger() {
	level, ok := logging.ParseLevel(s.config.Logging.Level)
	s.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  s.config.Logging.Dir,
		Service: serviceName,
		JSON:    s.config.Logging.JSON,
		Output:  s.opts.LogOutput,
	})
	slog.SetDefault(s.logger.Slog())
	if !ok {
		slog.Warn("Unknown log level, using info", "level", s.config.Logging.Level)
	}
}

func (s *service) initStore() error {
	var bc badger.Config
	if s.config.Storage.InMemory {
		bc = badger.InMemoryConfig()
	} else {
		bc = badger.DefaultConfig(logging.ExpandPath(s.config.Storage.DataDir))
		bc.SyncWrites = s.config.Storage.SyncWrites
		bc.GCInterval = s.config.Storage.GCInterval
	}
	bc.Logger = s.logger.Slog()

	st, err := store.OpenBadgerStore(bc, s.logger.Slog())
	if err != nil {
		return err
	}
	s.store = st
	return nil
}

// buildClient registers a client per configured provider. Anthropic and
// OpenAI need an API key; a provider without one stays unregistered and
// its models fail with AuthError. Ollama needs no key and is always
// registered.
func (s *service) buildClient() llm.Client {
	gen := s.config.Generation
	logger := s.logger.Slog()

	router := llm.NewRouter(func(model string) (string, bool) {
		info, ok := datatypes.LookupModel(model)
		return info.Provider, ok
	})

	if gen.Anthropic.APIKey != "" {
		c, err := llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:  gen.Anthropic.APIKey,
			BaseURL: gen.Anthropic.BaseURL,
			Timeout: gen.Timeout,
			Logger:  logger,
		})
		if err != nil {
			slog.Warn("Anthropic client not available", "error", err)
		} else {
			router.Register(datatypes.ProviderAnthropic, c)
		}
	}
	if gen.OpenAI.APIKey != "" {
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  gen.OpenAI.APIKey,
			BaseURL: gen.OpenAI.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			slog.Warn("OpenAI client not available", "error", err)
		} else {
			router.Register(datatypes.ProviderOpenAI, c)
		}
	}
	router.Register(datatypes.ProviderOllama, llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: gen.Ollama.BaseURL,
		Timeout: gen.Timeout,
		Logger:  logger,
	}))
	slog.Info("Generation providers registered", "providers", router.Providers())

	rc := llm.DefaultRetryConfig()
	rc.MaxAttempts = gen.MaxAttempts
	rc.RequestsPerSecond = gen.RequestsPerSecond
	if gen.Burst > 0 {
		rc.Burst = gen.Burst
	}
	return llm.NewRetryClient(router, rc, logger)
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	out := s.opts.TraceOutput
	if out == nil {
		out = os.Stdout
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initRouter() {
	if s.config.Server.GinMode != "" {
		gin.SetMode(s.config.Server.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger())
	s.router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(s.router, s.lab, s.registry)
}

// requestLogger logs one line per request through slog, replacing gin's
// default stdout logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// cleanup releases everything New opened. Safe to call more than once.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Experiment store close error", "error", err)
		}
		s.store = nil
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
