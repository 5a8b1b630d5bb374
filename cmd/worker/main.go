// Package main provides the entry point for the review generation Temporal worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"

	"github.com/helixir/review-generation-service/internal/config"
	"github.com/helixir/review-generation-service/internal/database"
	"github.com/helixir/review-generation-service/internal/events"
	"github.com/helixir/review-generation-service/internal/extract"
	"github.com/helixir/review-generation-service/internal/llm"
	"github.com/helixir/review-generation-service/internal/observability"
	"github.com/helixir/review-generation-service/internal/openalex"
	"github.com/helixir/review-generation-service/internal/pdf"
	"github.com/helixir/review-generation-service/internal/repository"
	"github.com/helixir/review-generation-service/internal/temporal"
	"github.com/helixir/review-generation-service/internal/temporal/activities"
	"github.com/helixir/review-generation-service/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("review-generation-service worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	jobRepo := repository.NewPgJobRepository(db)
	paperRepo := repository.NewPgPaperRepository(db)

	metrics := observability.NewMetrics()

	searcher := openalex.New(cfg.OpenAlex)

	fetcher := pdf.NewDownloader(pdf.Config{
		Timeout:    cfg.PDF.Timeout,
		MaxSize:    cfg.PDF.MaxSizeBytes,
		MaxRetries: cfg.PDF.MaxRetries,
	})
	store, err := pdf.NewStore(cfg.PDF.CacheDir)
	if err != nil {
		return fmt.Errorf("create PDF store: %w", err)
	}

	extractor := activities.NewTextExtractor(extract.New())

	generator, err := llm.NewGenerator(llm.FactoryConfig{
		Provider:   cfg.LLM.Provider,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:         cfg.LLM.OpenAI.APIKey,
			BaseURL:        cfg.LLM.OpenAI.BaseURL,
			SummaryModel:   cfg.LLM.OpenAI.SummaryModel,
			SynthesisModel: cfg.LLM.OpenAI.SynthesisModel,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:         cfg.LLM.Anthropic.APIKey,
			BaseURL:        cfg.LLM.Anthropic.BaseURL,
			SummaryModel:   cfg.LLM.Anthropic.SummaryModel,
			SynthesisModel: cfg.LLM.Anthropic.SynthesisModel,
		},
	})
	if err != nil {
		return fmt.Errorf("create generation provider: %w", err)
	}

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewKafkaPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, logger)
		defer func() {
			if closeErr := kafkaPublisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close kafka publisher")
			}
		}()
		publisher = kafkaPublisher
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka event publishing enabled")
	} else {
		publisher = events.NopPublisher{}
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Str("task_queue", cfg.Temporal.TaskQueue).
		Msg("temporal client connected")

	manager, err := temporal.NewWorkerManager(temporalClient, temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue))
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	manager.RegisterWorkflow(workflows.ReviewJobWorkflow)
	manager.RegisterActivity(activities.NewSearchActivities(searcher, paperRepo, metrics))
	manager.RegisterActivity(activities.NewPaperActivities(paperRepo, fetcher, store, extractor, generator, metrics))
	manager.RegisterActivity(activities.NewReviewActivities(paperRepo, generator, metrics))
	manager.RegisterActivity(activities.NewStatusActivities(jobRepo, metrics))
	manager.RegisterActivity(activities.NewEventActivities(publisher, metrics))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsAddress(),
		Handler: metricsMux,
	}
	go func() {
		logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	defer func() {
		if err := metricsServer.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}()

	logger.Info().Msg("worker is ready")

	if err := manager.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker: %w", err)
	}

	logger.Info().Msg("worker shutdown complete")
	return nil
}
