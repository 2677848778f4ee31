package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"intel_fetcher/internal/domain"
)

// Gate is the single point where articles enter storage. Uniqueness by URL
// is enforced by the store, so concurrent runs admit each URL at most once.
type Gate struct {
	articles  ArticleStore
	entities  EntityStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
}

func NewGate(
	articles ArticleStore,
	entities EntityStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		articles:  articles,
		entities:  entities,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "gate"),
	}
}

// Seen reports whether an article with this exact URL is already stored.
// A false answer is not a promise that Admit will insert.
func (g *Gate) Seen(ctx context.Context, url string) (bool, error) {
	exists, err := g.articles.ExistsByURL(ctx, url)
	if err != nil {
		return false, fmt.Errorf("check url: %w", err)
	}
	return exists, nil
}

// Admit inserts the article and its entities in one transaction. It returns
// false without error when the URL is already taken.
func (g *Gate) Admit(ctx context.Context, article *domain.Article) (bool, error) {
	err := g.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := g.articles.Insert(txCtx, article)
		if err != nil {
			return err
		}
		article.ID = id

		if len(article.Entities) > 0 {
			if err := g.entities.InsertBatch(txCtx, id, article.Entities); err != nil {
				return fmt.Errorf("insert entities: %w", err)
			}
		}
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateURL) {
		g.logger.Debug("duplicate at insert", "url", article.URL)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("admit article: %w", err)
	}

	if g.publisher != nil {
		if err := g.publisher.PublishCreated(ctx, article); err != nil {
			g.logger.Warn("publish failed",
				"article_id", article.ID,
				"error", err,
			)
		}
	}

	return true, nil
}
