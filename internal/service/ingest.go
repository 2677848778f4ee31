package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"intel_fetcher/internal/config"
	"intel_fetcher/internal/domain"
)

type RunRequest struct {
	Trigger domain.Trigger
	// TopicID restricts the run to one topic's sources when set.
	TopicID *int64
}

type Ingestor struct {
	sources  SourceStore
	feeds    FeedFetcher
	pages    PageFetcher
	enricher Enricher
	gate     *Gate
	runs     IngestRunStore
	logger   *slog.Logger
	config   config.IngestConfig
}

func NewIngestor(
	sources SourceStore,
	feeds FeedFetcher,
	pages PageFetcher,
	enricher Enricher,
	gate *Gate,
	runs IngestRunStore,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *Ingestor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Ingestor{
		sources:  sources,
		feeds:    feeds,
		pages:    pages,
		enricher: enricher,
		gate:     gate,
		runs:     runs,
		logger:   logger.With("component", "ingestor"),
		config:   cfg,
	}
}

type runCounters struct {
	fetched       atomic.Int64
	processed     atomic.Int64
	skipped       atomic.Int64
	failedSources atomic.Int64
	failedItems   atomic.Int64
}

// Run walks every source of the active topics once. Fetch and enrichment
// failures are counted and contained; a store failure aborts the run and is
// returned together with the stats gathered so far.
func (s *Ingestor) Run(ctx context.Context, req RunRequest) (*domain.RunStats, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "trigger", req.Trigger)

	runCtx := ctx
	if s.config.MaxRunDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.MaxRunDuration)
		defer cancel()
	}

	record := &domain.IngestRun{
		RunID:     runID,
		Trigger:   req.Trigger,
		TopicID:   req.TopicID,
		StartedAt: startTime,
	}
	s.startRun(ctx, logger, record)

	stats := &domain.RunStats{RunID: runID}
	var counters runCounters

	err := s.run(runCtx, logger, req, stats, &counters)

	stats.Fetched = int(counters.fetched.Load())
	stats.Processed = int(counters.processed.Load())
	stats.Skipped = int(counters.skipped.Load())
	stats.FailedSources = int(counters.failedSources.Load())
	stats.FailedItems = int(counters.failedItems.Load())
	stats.Duration = time.Since(startTime)

	var runErr error
	switch {
	case err != nil:
		runErr = err
	case errors.Is(ctx.Err(), context.Canceled):
		runErr = ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		// Either deadline may have fired; both mean a truncated run.
		logger.Warn("run deadline reached, stopping early", "max_run_duration", s.config.MaxRunDuration)
		s.finishRun(ctx, logger, record, stats, errors.New("max run duration exceeded"))
		return stats, nil
	}

	s.finishRun(ctx, logger, record, stats, runErr)

	if runErr != nil {
		logger.Error("ingestion failed",
			"processed", stats.Processed,
			"error", runErr,
		)
		return stats, runErr
	}

	logger.Info("ingestion completed",
		"sources", stats.Sources,
		"fetched", stats.Fetched,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed_sources", stats.FailedSources,
		"failed_items", stats.FailedItems,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *Ingestor) run(ctx context.Context, logger *slog.Logger, req RunRequest, stats *domain.RunStats, c *runCounters) error {
	sources, err := s.sources.List(ctx, domain.SourceFilter{TopicID: req.TopicID, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	stats.Sources = len(sources)

	logger.Info("starting ingestion",
		"sources", len(sources),
		"concurrency", s.config.Concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, src := range sources {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.processSource(gctx, logger, src, c)
		})
	}

	return g.Wait()
}

func (s *Ingestor) processSource(ctx context.Context, logger *slog.Logger, src domain.Source, c *runCounters) error {
	if ctx.Err() != nil {
		return nil
	}

	logger = logger.With("source_id", src.ID, "source_url", src.URL)

	candidates, err := s.fetch(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.failedSources.Add(1)
		logger.Warn("source fetch failed", "type", src.Type, "error", err)
		return nil
	}

	c.fetched.Add(int64(len(candidates)))
	logger.Debug("fetched source", "candidates", len(candidates))

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return nil
		}

		if strings.TrimSpace(candidate.URL) == "" {
			c.failedItems.Add(1)
			continue
		}

		seen, err := s.gate.Seen(ctx, candidate.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("source %d: %w", src.ID, err)
		}
		if seen {
			c.skipped.Add(1)
			continue
		}

		enrichment := s.enricher.Enrich(ctx, candidate)
		article := domain.NewArticle(src.ID, candidate, enrichment)

		inserted, err := s.gate.Admit(ctx, &article)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("source %d: %w", src.ID, err)
		}

		if inserted {
			c.processed.Add(1)
			logger.Debug("article stored", "article_id", article.ID, "url", article.URL)
		} else {
			c.skipped.Add(1)
		}
	}

	return nil
}

func (s *Ingestor) fetch(ctx context.Context, src domain.Source) ([]domain.Candidate, error) {
	if s.config.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SourceTimeout)
		defer cancel()
	}

	if src.Type == domain.SourceRSS {
		return s.feeds.Fetch(ctx, src.URL)
	}

	page, err := s.pages.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return []domain.Candidate{page.Candidate}, nil
}

func (s *Ingestor) startRun(ctx context.Context, logger *slog.Logger, record *domain.IngestRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Start(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("failed to record run start", "error", err)
	}
}

func (s *Ingestor) finishRun(ctx context.Context, logger *slog.Logger, record *domain.IngestRun, stats *domain.RunStats, runErr error) {
	if s.runs == nil {
		return
	}

	finishedAt := time.Now()
	record.FinishedAt = &finishedAt
	record.Processed = stats.Processed
	record.FailedSources = stats.FailedSources
	record.FailedItems = stats.FailedItems
	if runErr != nil {
		msg := runErr.Error()
		record.Error = &msg
	}

	if err := s.runs.Finish(context.WithoutCancel(ctx), record); err != nil {
		logger.Warn("failed to record run finish", "error", err)
	}
}
