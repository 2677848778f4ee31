package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"intel_fetcher/internal/domain"
)

type TopicStore struct {
	db *sqlx.DB
}

func NewTopicStore(db *sqlx.DB) *TopicStore {
	return &TopicStore{db: db}
}

func (s *TopicStore) Create(ctx context.Context, topic *domain.Topic) error {
	query := `
		INSERT INTO topics (keyword, is_active)
		VALUES ($1, $2)
		RETURNING id, created_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, topic.Keyword, topic.IsActive).
		Scan(&topic.ID, &topic.CreatedAt)
}

func (s *TopicStore) List(ctx context.Context, activeOnly bool) ([]domain.Topic, error) {
	builder := sq.Select("id", "keyword", "is_active", "created_at").
		From("topics").
		OrderBy("created_at DESC", "id DESC").
		PlaceholderFormat(sq.Dollar)
	if activeOnly {
		builder = builder.Where(sq.Eq{"is_active": true})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build topic query: %w", err)
	}

	topics := []domain.Topic{}
	err = sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &topics, query, args...)
	return topics, err
}

func (s *TopicStore) Get(ctx context.Context, id int64) (*domain.Topic, error) {
	var topic domain.Topic
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &topic,
		"SELECT id, keyword, is_active, created_at FROM topics WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

func (s *TopicStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE topics SET is_active = $2 WHERE id = $1", id, active)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Delete removes the topic; sources, articles, entities and read status
// follow through ON DELETE CASCADE.
func (s *TopicStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM topics WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CreatedSince returns creation times of topics and sources created at or after since.
func (s *TopicStore) CreatedSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	query := `
		SELECT created_at FROM topics WHERE created_at >= $1
		UNION ALL
		SELECT created_at FROM sources WHERE created_at >= $1
		ORDER BY created_at`

	var times []time.Time
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &times, query, since)
	return times, err
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
