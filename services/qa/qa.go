// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package qa provides the conversational QA service over CFR documents.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the session store, the intent classifier
// chain, retrieval against Weaviate, answer composition, the TTL
// sweeper, and observability infrastructure.
//
// # Usage
//
//	cfg := qa.Config{Port: 6000, LLMBackend: "openai", WeaviateURL: "http://localhost:8080"}
//	svc, err := qa.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/EnviroPro/services/llm"
	"github.com/AleutianAI/EnviroPro/services/qa/citations"
	"github.com/AleutianAI/EnviroPro/services/qa/classifiers"
	"github.com/AleutianAI/EnviroPro/services/qa/compose"
	"github.com/AleutianAI/EnviroPro/services/qa/memory"
	"github.com/AleutianAI/EnviroPro/services/qa/observability"
	"github.com/AleutianAI/EnviroPro/services/qa/retrieval"
	"github.com/AleutianAI/EnviroPro/services/qa/routes"
	"github.com/AleutianAI/EnviroPro/services/qa/ttl"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the QA service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds QA service configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or
// programmatically for testing.
//
// # Required Fields
//
//   - WeaviateURL: The similarity index is not optional for this
//     service; New() fails without it.
//
// All other fields have sensible defaults.
type Config struct {
	// Port is the HTTP server port. Default: 6000
	Port int

	// LLMBackend specifies the oracle provider.
	// Valid values: "openai", "ollama". Default: "openai"
	LLMBackend string

	// WeaviateURL is the Weaviate vector database URL.
	// Required. Example: "http://localhost:8080"
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "enviropro-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// TopK is the number of passages retrieved per question. Default: 3
	TopK int

	// OracleTimeout bounds each individual oracle call. Default: 60s
	OracleTimeout time.Duration

	// SweepInterval is how often the stale-session sweeper runs.
	// Default: 30 minutes
	SweepInterval time.Duration

	// SessionTTL is the idle time after which a session is evicted.
	// Default: 1 hour
	SessionTTL time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// Thread-safe after construction; all fields are read-only after New()
// returns. Mutable conversational state lives in the session store.
type service struct {
	config         Config
	router         *gin.Engine
	store          *memory.Store
	llmClient      llm.LLMClient
	embedder       llm.Embedder
	weaviateClient *weaviate.Client
	metrics        *observability.QAMetrics
	sweeper        *ttl.Sweeper
	tracerCleanup  func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a QA Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the Weaviate client (required)
//  5. Creates the oracle client for the configured backend; a missing
//     credential fails here, at boot, not on the first request
//  6. Wires the session store, classifier chain, retrieval engine,
//     composer, and TTL sweeper
//  7. Sets up HTTP routes
//
// # Outputs
//
//   - Service: Ready-to-run QA service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
		store:  memory.NewStore(),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		s.metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initWeaviate(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize Weaviate client: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initSweeper(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to start session sweeper: %w", err)
	}

	if err := s.initRouter(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting QA server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing. Callers must not
// modify the router.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 6000
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "enviropro-otel-collector:4317"
	}
	if cfg.TopK == 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.OracleTimeout == 0 {
		cfg.OracleTimeout = retrieval.DefaultOracleTimeout
	}

	sweepDefaults := ttl.DefaultSweeperConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = sweepDefaults.Interval
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = sweepDefaults.SessionTTL
	}

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("enviropro-qa")))
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
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initWeaviate initializes the Weaviate vector database client.
//
// Unlike optional integrations, a missing or malformed URL is fatal: the
// service cannot answer anything without its corpus.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		return fmt.Errorf("WEAVIATE_URL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initLLMClient initializes the oracle client for the configured backend.
//
// Both backends double as the embedding provider, so a single credential
// failure surfaces every downstream problem at boot.
func (s *service) initLLMClient() error {
	switch s.config.LLMBackend {
	case "openai":
		client, err := llm.NewOpenAIClient()
		if err != nil {
			return err
		}
		s.llmClient = client
		s.embedder = client
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err := llm.NewOllamaClient()
		if err != nil {
			return err
		}
		s.llmClient = client
		s.embedder = client
		slog.Info("Using Ollama LLM backend")
	default:
		return fmt.Errorf("unknown LLM backend: %s", s.config.LLMBackend)
	}
	return nil
}

// initSweeper starts the background stale-session sweeper.
func (s *service) initSweeper() error {
	s.sweeper = ttl.NewSweeper(s.store, s.metrics, ttl.SweeperConfig{
		Interval:   s.config.SweepInterval,
		SessionTTL: s.config.SessionTTL,
	})
	if err := s.sweeper.Start(context.Background()); err != nil {
		return err
	}
	slog.Info("Stale-session sweeper started",
		"interval", s.config.SweepInterval.String(),
		"session_ttl", s.config.SessionTTL.String(),
	)
	return nil
}

// initRouter wires the pipeline and registers all routes.
func (s *service) initRouter() error {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	extractor, err := citations.NewExtractor()
	if err != nil {
		return fmt.Errorf("failed to load citation rules: %w", err)
	}

	index := retrieval.NewWeaviateIndex(s.weaviateClient, s.embedder)
	engine := retrieval.NewEngine(s.store, index, s.llmClient, s.config.TopK, s.config.OracleTimeout)
	requery := compose.NewRequery(index, s.llmClient, s.config.OracleTimeout)
	composer := compose.NewComposer(s.store, s.llmClient, extractor, requery, s.config.OracleTimeout)
	chain := classifiers.NewChain(
		classifiers.NewThanksClassifier(s.store),
		classifiers.NewSmallTalkClassifier(s.store, s.llmClient),
		classifiers.NewVagueClassifier(s.store, s.llmClient),
		classifiers.NewTypoClassifier(s.store, s.llmClient),
	)

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("enviropro-qa"))

	routes.SetupRoutes(s.router, s.store, chain, engine, composer, s.metrics)
	return nil
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure.
func (s *service) cleanup() {
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			slog.Warn("Sweeper stop error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
