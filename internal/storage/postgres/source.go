package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"intel_fetcher/internal/domain"
)

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) Create(ctx context.Context, src *domain.Source) error {
	query := `
		INSERT INTO sources (topic_id, url, name, type, reliability_score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		src.TopicID,
		src.URL,
		src.Name,
		string(src.Type),
		src.ReliabilityScore,
	).Scan(&src.ID, &src.CreatedAt)
	if hasCode(err, codeForeignKeyViolation) {
		return domain.ErrNotFound
	}
	return err
}

func (s *SourceStore) List(ctx context.Context, filter domain.SourceFilter) ([]domain.Source, error) {
	builder := sq.Select(
		"s.id", "s.topic_id", "s.url", "s.name", "s.type", "s.reliability_score", "s.created_at",
	).
		From("sources s").
		Join("topics t ON t.id = s.topic_id").
		OrderBy("s.id").
		PlaceholderFormat(sq.Dollar)

	if filter.ActiveOnly {
		builder = builder.Where(sq.Eq{"t.is_active": true})
	}
	if filter.TopicID != nil {
		builder = builder.Where(sq.Eq{"s.topic_id": *filter.TopicID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source query: %w", err)
	}

	sources := []domain.Source{}
	err = sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query, args...)
	return sources, err
}

// Delete removes the source together with its articles (ON DELETE CASCADE).
func (s *SourceStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM sources WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
