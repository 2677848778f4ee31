package enrich

//go:generate mockgen -source=enricher.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"intel_fetcher/internal/domain"
)

type Provider interface {
	Summarize(ctx context.Context, text string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Analyze(ctx context.Context, title, content string) (domain.Analysis, error)
}

type Config struct {
	MaxInputChars int
	CallTimeout   time.Duration
	Analysis      bool
}

// Enricher derives summary, embedding and analysis for a candidate. A failed
// provider call degrades the corresponding field and never fails the item.
type Enricher struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger
}

func NewEnricher(provider Provider, cfg Config, logger *slog.Logger) *Enricher {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 10000
	}
	return &Enricher{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "enricher"),
	}
}

func (e *Enricher) Enrich(ctx context.Context, c domain.Candidate) domain.Enrichment {
	var out domain.Enrichment

	content := c.Content
	if strings.TrimSpace(content) == "" {
		content = c.Title
	}
	input := Truncate(content, e.cfg.MaxInputChars)

	summary, err := call(ctx, e.cfg.CallTimeout, func(ctx context.Context) (string, error) {
		return e.provider.Summarize(ctx, input)
	})
	if err != nil {
		e.degraded("summary", c.URL, err)
	} else {
		out.Summary = summary
	}

	embedInput := out.Summary
	if embedInput == "" {
		embedInput = Truncate(strings.TrimSpace(c.Title+"\n\n"+c.Content), e.cfg.MaxInputChars)
	}

	embedding, err := call(ctx, e.cfg.CallTimeout, func(ctx context.Context) ([]float32, error) {
		return e.provider.Embed(ctx, embedInput)
	})
	if err != nil {
		e.degraded("embedding", c.URL, err)
	} else {
		out.Embedding = embedding
	}

	if !e.cfg.Analysis {
		return out
	}

	analysis, err := call(ctx, e.cfg.CallTimeout, func(ctx context.Context) (domain.Analysis, error) {
		return e.provider.Analyze(ctx, c.Title, input)
	})
	if err != nil {
		e.degraded("analysis", c.URL, err)
	} else {
		out.Analysis = &analysis
	}

	return out
}

func (e *Enricher) degraded(field, url string, err error) {
	e.logger.Warn("enrichment degraded",
		"field", field,
		"url", url,
		"error", err,
	)
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
