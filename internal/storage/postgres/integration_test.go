//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"intel_fetcher/internal/domain"
	"intel_fetcher/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_init.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, "TRUNCATE topics, sources, articles, article_entities, article_read_status, ingest_runs RESTART IDENTITY CASCADE")
	s.Require().NoError(err)
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) seedSource(keyword string, active bool) (domain.Topic, domain.Source) {
	topic := domain.Topic{Keyword: keyword, IsActive: active}
	s.Require().NoError(NewTopicStore(s.db).Create(s.ctx, &topic))

	src := domain.Source{
		TopicID:          topic.ID,
		URL:              "https://example.com/" + keyword + "/feed",
		Name:             keyword,
		Type:             domain.SourceRSS,
		ReliabilityScore: 80,
	}
	s.Require().NoError(NewSourceStore(s.db).Create(s.ctx, &src))
	return topic, src
}

func (s *PostgresIntegrationSuite) TestArticleStore_InsertAndDuplicate() {
	_, src := s.seedSource("ai", true)
	store := NewArticleStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	article := &domain.Article{
		SourceID:        src.ID,
		Title:           "Test Article",
		URL:             "https://example.com/a",
		Content:         "body",
		Summary:         "summary",
		PublishedAt:     now,
		ImportanceScore: utils.Ptr(70),
		Sentiment:       utils.Ptr(domain.SentimentPositive),
		Tags:            []string{"ai", "chips"},
		Embedding:       []float32{0.5, 0.25},
	}

	id, err := store.Insert(s.ctx, article)
	s.NoError(err)
	s.Greater(id, int64(0))
	s.False(article.CreatedAt.IsZero())

	dup := *article
	dup.Title = "Other title"
	_, err = store.Insert(s.ctx, &dup)
	s.ErrorIs(err, domain.ErrDuplicateURL)

	got, err := store.GetByURL(s.ctx, "https://example.com/a")
	s.Require().NoError(err)
	s.Equal("Test Article", got.Title)
	s.Equal([]string{"ai", "chips"}, got.Tags)
	s.Equal([]float32{0.5, 0.25}, got.Embedding)
	s.Equal(70, *got.ImportanceScore)
	s.Equal(domain.SentimentPositive, *got.Sentiment)

	exists, err := store.ExistsByURL(s.ctx, "https://example.com/a")
	s.NoError(err)
	s.True(exists)
}

func (s *PostgresIntegrationSuite) TestArticleStore_DegradedFieldsStoredAsNull() {
	_, src := s.seedSource("ai", true)
	store := NewArticleStore(s.db)

	_, err := store.Insert(s.ctx, &domain.Article{
		SourceID:    src.ID,
		Title:       "t",
		URL:         "https://example.com/degraded",
		PublishedAt: time.Now(),
	})
	s.Require().NoError(err)

	got, err := store.GetByURL(s.ctx, "https://example.com/degraded")
	s.Require().NoError(err)
	s.Empty(got.Embedding)
	s.Nil(got.ImportanceScore)
	s.Nil(got.Sentiment)
	s.Empty(got.Summary)

	var embeddingIsNull bool
	s.NoError(s.db.GetContext(s.ctx, &embeddingIsNull,
		"SELECT embedding IS NULL FROM articles WHERE url = $1", "https://example.com/degraded"))
	s.True(embeddingIsNull)
}

func (s *PostgresIntegrationSuite) TestArticleStore_ConcurrentInsertSameURL() {
	_, srcA := s.seedSource("a", true)
	_, srcB := s.seedSource("b", true)
	store := NewArticleStore(s.db)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		dups     int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sourceID := srcA.ID
			if i%2 == 1 {
				sourceID = srcB.ID
			}
			_, err := store.Insert(s.ctx, &domain.Article{
				SourceID:    sourceID,
				Title:       fmt.Sprintf("copy %d", i),
				URL:         "https://example.com/shared",
				PublishedAt: time.Now(),
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, domain.ErrDuplicateURL):
				dups++
			default:
				s.Fail("unexpected error", err.Error())
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, inserted)
	s.Equal(workers-1, dups)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM articles WHERE url = $1", "https://example.com/shared"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestArticleStore_LatestCreatedAt() {
	store := NewArticleStore(s.db)

	latest, err := store.LatestCreatedAt(s.ctx)
	s.NoError(err)
	s.Nil(latest)

	_, src := s.seedSource("ai", true)
	article := &domain.Article{SourceID: src.ID, URL: "https://example.com/1", PublishedAt: time.Now()}
	_, err = store.Insert(s.ctx, article)
	s.Require().NoError(err)

	latest, err = store.LatestCreatedAt(s.ctx)
	s.NoError(err)
	s.Require().NotNil(latest)
	s.WithinDuration(article.CreatedAt, *latest, time.Millisecond)
}

func (s *PostgresIntegrationSuite) TestTransaction_EntitiesRollBackWithArticle() {
	_, src := s.seedSource("ai", true)
	articles := NewArticleStore(s.db)
	entities := NewEntityStore(s.db)
	tm := NewTransactionManager(s.db)

	var articleID int64
	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		id, err := articles.Insert(ctx, &domain.Article{SourceID: src.ID, URL: "https://example.com/tx", PublishedAt: time.Now()})
		if err != nil {
			return err
		}
		articleID = id
		if err := entities.InsertBatch(ctx, id, []domain.Entity{{Name: "OpenAI", Type: domain.EntityOrganization}}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	s.EqualError(err, "boom")

	exists, err := articles.ExistsByURL(s.ctx, "https://example.com/tx")
	s.NoError(err)
	s.False(exists)

	got, err := entities.GetByArticleID(s.ctx, articleID)
	s.NoError(err)
	s.Empty(got)
}

func (s *PostgresIntegrationSuite) TestEntityStore_InsertBatch() {
	_, src := s.seedSource("ai", true)
	article := &domain.Article{SourceID: src.ID, URL: "https://example.com/e", PublishedAt: time.Now()}
	_, err := NewArticleStore(s.db).Insert(s.ctx, article)
	s.Require().NoError(err)

	store := NewEntityStore(s.db)
	s.NoError(store.InsertBatch(s.ctx, article.ID, []domain.Entity{
		{Name: "Tokyo", Type: domain.EntityLocation},
		{Name: "OpenAI", Type: domain.EntityOrganization},
		{Name: "Tokyo", Type: domain.EntityLocation},
	}))

	got, err := store.GetByArticleID(s.ctx, article.ID)
	s.NoError(err)
	s.Equal([]domain.Entity{
		{Name: "OpenAI", Type: domain.EntityOrganization},
		{Name: "Tokyo", Type: domain.EntityLocation},
	}, got)
}

func (s *PostgresIntegrationSuite) TestSourceStore_ListFilters() {
	active, _ := s.seedSource("active", true)
	s.seedSource("inactive", false)
	store := NewSourceStore(s.db)

	all, err := store.List(s.ctx, domain.SourceFilter{})
	s.NoError(err)
	s.Len(all, 2)

	onlyActive, err := store.List(s.ctx, domain.SourceFilter{ActiveOnly: true})
	s.NoError(err)
	s.Require().Len(onlyActive, 1)
	s.Equal(active.ID, onlyActive[0].TopicID)

	byTopic, err := store.List(s.ctx, domain.SourceFilter{TopicID: utils.Ptr(active.ID), ActiveOnly: true})
	s.NoError(err)
	s.Len(byTopic, 1)

	missing, err := store.List(s.ctx, domain.SourceFilter{TopicID: utils.Ptr(int64(9999))})
	s.NoError(err)
	s.Empty(missing)
}

func (s *PostgresIntegrationSuite) TestSourceStore_CreateUnknownTopic() {
	err := NewSourceStore(s.db).Create(s.ctx, &domain.Source{
		TopicID: 42, URL: "https://x", Type: domain.SourceRSS, ReliabilityScore: 50,
	})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestTopicStore_DeleteCascadesToReadStatus() {
	topic, src := s.seedSource("cascade", true)
	article := &domain.Article{SourceID: src.ID, URL: "https://example.com/c", PublishedAt: time.Now()}
	_, err := NewArticleStore(s.db).Insert(s.ctx, article)
	s.Require().NoError(err)
	s.Require().NoError(NewEntityStore(s.db).InsertBatch(s.ctx, article.ID, []domain.Entity{{Name: "X", Type: domain.EntityOther}}))

	readStatus := NewReadStatusStore(s.db)
	s.Require().NoError(readStatus.MarkRead(s.ctx, article.ID))

	s.NoError(NewTopicStore(s.db).Delete(s.ctx, topic.ID))

	for _, table := range []string{"sources", "articles", "article_entities", "article_read_status"} {
		var count int
		s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM "+table))
		s.Equal(0, count, table)
	}

	s.ErrorIs(NewTopicStore(s.db).Delete(s.ctx, topic.ID), domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestTopicStore_SetActiveAndList() {
	store := NewTopicStore(s.db)
	topic, _ := s.seedSource("toggle", true)

	s.NoError(store.SetActive(s.ctx, topic.ID, false))
	s.ErrorIs(store.SetActive(s.ctx, 9999, true), domain.ErrNotFound)

	got, err := store.Get(s.ctx, topic.ID)
	s.NoError(err)
	s.False(got.IsActive)

	active, err := store.List(s.ctx, true)
	s.NoError(err)
	s.Empty(active)

	all, err := store.List(s.ctx, false)
	s.NoError(err)
	s.Len(all, 1)
}

func (s *PostgresIntegrationSuite) TestTopicStore_CreatedSince() {
	store := NewTopicStore(s.db)
	s.seedSource("recent", true)

	times, err := store.CreatedSince(s.ctx, time.Now().Add(-time.Minute))
	s.NoError(err)
	s.Len(times, 2)

	times, err = store.CreatedSince(s.ctx, time.Now().Add(time.Minute))
	s.NoError(err)
	s.Empty(times)
}

func (s *PostgresIntegrationSuite) TestReadStatusStore() {
	_, src := s.seedSource("read", true)
	article := &domain.Article{SourceID: src.ID, URL: "https://example.com/r", PublishedAt: time.Now()}
	_, err := NewArticleStore(s.db).Insert(s.ctx, article)
	s.Require().NoError(err)

	store := NewReadStatusStore(s.db)
	s.NoError(store.MarkRead(s.ctx, article.ID))
	s.NoError(store.MarkRead(s.ctx, article.ID))

	read, err := store.IsRead(s.ctx, article.ID)
	s.NoError(err)
	s.True(read)

	s.NoError(store.MarkUnread(s.ctx, article.ID))
	s.NoError(store.MarkUnread(s.ctx, article.ID))

	read, err = store.IsRead(s.ctx, article.ID)
	s.NoError(err)
	s.False(read)

	s.ErrorIs(store.MarkRead(s.ctx, 9999), domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestIngestRunStore() {
	store := NewIngestRunStore(s.db)

	latest, err := store.LatestStartedAt(s.ctx)
	s.NoError(err)
	s.Nil(latest)

	started := time.Now().Truncate(time.Microsecond)
	run := &domain.IngestRun{
		RunID:     uuid.NewString(),
		Trigger:   domain.TriggerManual,
		TopicID:   utils.Ptr(int64(3)),
		StartedAt: started,
	}
	s.Require().NoError(store.Start(s.ctx, run))
	s.Greater(run.ID, int64(0))

	finished := started.Add(time.Second)
	run.FinishedAt = &finished
	run.Processed = 4
	run.FailedSources = 1
	run.Error = utils.Ptr("store unavailable")
	s.Require().NoError(store.Finish(s.ctx, run))

	got, err := store.Get(s.ctx, run.RunID)
	s.Require().NoError(err)
	s.Equal(4, got.Processed)
	s.Equal(1, got.FailedSources)
	s.Equal(int64(3), *got.TopicID)
	s.Equal("store unavailable", *got.Error)
	s.Require().NotNil(got.FinishedAt)

	latest, err = store.LatestStartedAt(s.ctx)
	s.NoError(err)
	s.Require().NotNil(latest)
	s.True(latest.Equal(started))
}
