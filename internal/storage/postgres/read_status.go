package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"intel_fetcher/internal/domain"
)

type ReadStatusStore struct {
	db *sqlx.DB
}

func NewReadStatusStore(db *sqlx.DB) *ReadStatusStore {
	return &ReadStatusStore{db: db}
}

func (s *ReadStatusStore) MarkRead(ctx context.Context, articleID int64) error {
	query := `
		INSERT INTO article_read_status (article_id, read_at)
		VALUES ($1, NOW())
		ON CONFLICT (article_id) DO UPDATE SET read_at = EXCLUDED.read_at`

	_, err := s.db.ExecContext(ctx, query, articleID)
	if hasCode(err, codeForeignKeyViolation) {
		return domain.ErrNotFound
	}
	return err
}

// MarkUnread is idempotent: unread articles stay unread.
func (s *ReadStatusStore) MarkUnread(ctx context.Context, articleID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM article_read_status WHERE article_id = $1", articleID)
	return err
}

func (s *ReadStatusStore) IsRead(ctx context.Context, articleID int64) (bool, error) {
	var read bool
	err := s.db.GetContext(ctx, &read,
		"SELECT EXISTS (SELECT 1 FROM article_read_status WHERE article_id = $1)", articleID)
	return read, err
}
