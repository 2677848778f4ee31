package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"intel_fetcher/internal/domain"
)

type EntityStore struct {
	db *sqlx.DB
}

func NewEntityStore(db *sqlx.DB) *EntityStore {
	return &EntityStore{db: db}
}

// InsertBatch links entities to an article in one statement.
func (s *EntityStore) InsertBatch(ctx context.Context, articleID int64, entities []domain.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	builder := sq.Insert("article_entities").
		Columns("article_id", "name", "type").
		Suffix("ON CONFLICT DO NOTHING").
		PlaceholderFormat(sq.Dollar)

	for _, e := range entities {
		builder = builder.Values(articleID, e.Name, string(e.Type))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build entity insert: %w", err)
	}

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	return err
}

func (s *EntityStore) GetByArticleID(ctx context.Context, articleID int64) ([]domain.Entity, error) {
	query := `
		SELECT name, type
		FROM article_entities
		WHERE article_id = $1
		ORDER BY name, type`

	var entities []domain.Entity
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entities, query, articleID)
	return entities, err
}
