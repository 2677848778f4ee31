package main

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"intel_fetcher/internal/ai"
	"intel_fetcher/internal/config"
	"intel_fetcher/internal/enrich"
	"intel_fetcher/internal/publisher"
	"intel_fetcher/internal/scheduler"
	"intel_fetcher/internal/service"
	"intel_fetcher/internal/source"
	"intel_fetcher/internal/source/rss"
	"intel_fetcher/internal/source/web"
	"intel_fetcher/internal/storage/postgres"
	"intel_fetcher/internal/trigger"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sqlx.DB
	publisher *publisher.RabbitMQ

	ingestor *service.Ingestor
	catalog  *service.Catalog
	checker  *trigger.Checker
	poller   *scheduler.Poller
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func newApp(configPath string) (*app, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("connected to database")

	a := &app{cfg: cfg, logger: logger, db: db}

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		a.publisher, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		pub = a.publisher
	} else {
		logger.Info("rabbitmq url not set, article events disabled")
	}

	articleStore := postgres.NewArticleStore(db)
	entityStore := postgres.NewEntityStore(db)
	sourceStore := postgres.NewSourceStore(db)
	topicStore := postgres.NewTopicStore(db)
	readStatusStore := postgres.NewReadStatusStore(db)
	runStore := postgres.NewIngestRunStore(db)
	txManager := postgres.NewTransactionManager(db)

	httpClient := source.NewClient(source.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		Timeout:        cfg.Fetch.Timeout,
		MaxBytes:       cfg.Fetch.MaxBytes,
		MaxAttempts:    cfg.Fetch.Retry.MaxAttempts,
		InitialBackoff: cfg.Fetch.Retry.InitialBackoff,
		MaxBackoff:     cfg.Fetch.Retry.MaxBackoff,
	}, logger)
	feeds := rss.NewFetcher(httpClient)
	pages := web.NewFetcher(httpClient)

	aiClient := ai.NewClient(ai.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		ChatModel:      cfg.AI.ChatModel,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Dimensions:     cfg.AI.EmbeddingDimensions,
		Language:       cfg.AI.Language,
		Timeout:        cfg.AI.CallTimeout,
		RequestsPerSec: cfg.AI.RequestsPerSec,
		Burst:          cfg.AI.Burst,
	})
	if cfg.AI.APIKey == "" {
		logger.Warn("ai api key not set, articles will be stored without enrichment")
	}
	enricher := enrich.NewEnricher(aiClient, enrich.Config{
		MaxInputChars: cfg.AI.MaxInputChars,
		CallTimeout:   cfg.AI.CallTimeout,
		Analysis:      cfg.AI.AnalysisEnabled(),
	}, logger)

	gate := service.NewGate(articleStore, entityStore, txManager, pub, logger)
	a.ingestor = service.NewIngestor(sourceStore, feeds, pages, enricher, gate, runStore, logger, cfg.Ingest)
	a.catalog = service.NewCatalog(topicStore, sourceStore, readStatusStore, pages, txManager, logger)

	policy, err := trigger.NewPolicy(cfg.Trigger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.checker = trigger.NewChecker(policy, articleStore, runStore, topicStore)
	a.poller = scheduler.NewPoller(a.checker, a.ingestor, cfg.Scheduler.PollInterval, logger)

	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	a.db.Close()
}
