package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"intel_fetcher/internal/domain"
)

type IngestRunStore struct {
	db *sqlx.DB
}

func NewIngestRunStore(db *sqlx.DB) *IngestRunStore {
	return &IngestRunStore{db: db}
}

func (s *IngestRunStore) Start(ctx context.Context, run *domain.IngestRun) error {
	query := `
		INSERT INTO ingest_runs (run_id, trigger, topic_id, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return s.db.QueryRowxContext(ctx, query,
		run.RunID,
		string(run.Trigger),
		run.TopicID,
		run.StartedAt,
	).Scan(&run.ID)
}

func (s *IngestRunStore) Finish(ctx context.Context, run *domain.IngestRun) error {
	query := `
		UPDATE ingest_runs SET
			finished_at = $2,
			processed = $3,
			failed_sources = $4,
			failed_items = $5,
			error = $6
		WHERE run_id = $1`

	_, err := s.db.ExecContext(ctx, query,
		run.RunID,
		run.FinishedAt,
		run.Processed,
		run.FailedSources,
		run.FailedItems,
		run.Error,
	)
	return err
}

// LatestStartedAt returns nil when no run was ever recorded.
func (s *IngestRunStore) LatestStartedAt(ctx context.Context) (*time.Time, error) {
	var latest sql.NullTime
	if err := s.db.GetContext(ctx, &latest, "SELECT MAX(started_at) FROM ingest_runs"); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (s *IngestRunStore) Get(ctx context.Context, runID string) (*domain.IngestRun, error) {
	var run domain.IngestRun
	query := `
		SELECT id, run_id, trigger, topic_id, started_at, finished_at,
		       processed, failed_sources, failed_items, error
		FROM ingest_runs
		WHERE run_id = $1`

	err := s.db.GetContext(ctx, &run, query, runID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
