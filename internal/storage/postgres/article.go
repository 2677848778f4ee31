package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"intel_fetcher/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// Insert stores a new article and fills ID and CreatedAt. It returns
// domain.ErrDuplicateURL when an article with the same URL already exists;
// existing rows are never touched.
func (s *ArticleStore) Insert(ctx context.Context, article *domain.Article) (int64, error) {
	query := `
		INSERT INTO articles (
			source_id, title, url, content, summary, published_at,
			importance_score, sentiment, tags, embedding
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (url) DO NOTHING
		RETURNING id, created_at`

	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}

	var embedding interface{}
	if len(article.Embedding) > 0 {
		embedding = pq.Array(article.Embedding)
	}

	var sentiment *string
	if article.Sentiment != nil {
		v := string(*article.Sentiment)
		sentiment = &v
	}

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		article.SourceID,
		article.Title,
		article.URL,
		article.Content,
		article.Summary,
		article.PublishedAt,
		article.ImportanceScore,
		sentiment,
		pq.StringArray(tags),
		embedding,
	).Scan(&article.ID, &article.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeUniqueViolation) {
		return 0, domain.ErrDuplicateURL
	}
	if err != nil {
		return 0, err
	}

	return article.ID, nil
}

func (s *ArticleStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		"SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1)", url)
	return exists, err
}

// LatestCreatedAt returns nil when no article exists yet.
func (s *ArticleStore) LatestCreatedAt(ctx context.Context) (*time.Time, error) {
	var latest sql.NullTime
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &latest,
		"SELECT MAX(created_at) FROM articles")
	if err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

type articleRow struct {
	ID              int64           `db:"id"`
	SourceID        int64           `db:"source_id"`
	Title           string          `db:"title"`
	URL             string          `db:"url"`
	Content         string          `db:"content"`
	Summary         string          `db:"summary"`
	PublishedAt     time.Time       `db:"published_at"`
	CreatedAt       time.Time       `db:"created_at"`
	ImportanceScore sql.NullInt64   `db:"importance_score"`
	Sentiment       sql.NullString  `db:"sentiment"`
	Tags            pq.StringArray  `db:"tags"`
	Embedding       pq.Float32Array `db:"embedding"`
}

func (r articleRow) toDomain() domain.Article {
	a := domain.Article{
		ID:          r.ID,
		SourceID:    r.SourceID,
		Title:       r.Title,
		URL:         r.URL,
		Content:     r.Content,
		Summary:     r.Summary,
		PublishedAt: r.PublishedAt,
		CreatedAt:   r.CreatedAt,
		Tags:        []string(r.Tags),
		Embedding:   []float32(r.Embedding),
	}
	if r.ImportanceScore.Valid {
		score := int(r.ImportanceScore.Int64)
		a.ImportanceScore = &score
	}
	if r.Sentiment.Valid {
		sentiment := domain.Sentiment(r.Sentiment.String)
		a.Sentiment = &sentiment
	}
	return a
}

func (s *ArticleStore) GetByURL(ctx context.Context, url string) (*domain.Article, error) {
	var row articleRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, `
		SELECT id, source_id, title, url, content, summary, published_at, created_at,
		       importance_score, sentiment, tags, embedding
		FROM articles
		WHERE url = $1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	article := row.toDomain()
	return &article, nil
}
