package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"intel_fetcher/internal/domain"
)

type ArticleStore interface {
	Insert(ctx context.Context, article *domain.Article) (int64, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

type EntityStore interface {
	InsertBatch(ctx context.Context, articleID int64, entities []domain.Entity) error
}

type SourceStore interface {
	List(ctx context.Context, filter domain.SourceFilter) ([]domain.Source, error)
	Create(ctx context.Context, src *domain.Source) error
	Delete(ctx context.Context, id int64) error
}

type TopicStore interface {
	Create(ctx context.Context, topic *domain.Topic) error
	List(ctx context.Context, activeOnly bool) ([]domain.Topic, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

type ReadStatusStore interface {
	MarkRead(ctx context.Context, articleID int64) error
	MarkUnread(ctx context.Context, articleID int64) error
}

type IngestRunStore interface {
	Start(ctx context.Context, run *domain.IngestRun) error
	Finish(ctx context.Context, run *domain.IngestRun) error
}

type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]domain.Candidate, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.Page, error)
	DiscoverFeed(ctx context.Context, url string) (string, error)
}

type Enricher interface {
	Enrich(ctx context.Context, c domain.Candidate) domain.Enrichment
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishCreated(ctx context.Context, article *domain.Article) error
	Close() error
}
