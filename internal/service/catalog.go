package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"intel_fetcher/internal/domain"
)

const (
	DefaultReliabilityScore  = 80
	fallbackReliabilityScore = 90
	fallbackSourceName       = "Google News"
)

// NewSource describes a source to register under a topic.
type NewSource struct {
	URL              string
	Name             string
	Type             domain.SourceType
	ReliabilityScore *int
}

// Catalog manages topics, sources and read status.
type Catalog struct {
	topics     TopicStore
	sources    SourceStore
	readStatus ReadStatusStore
	pages      PageFetcher
	txManager  TransactionManager
	logger     *slog.Logger
}

func NewCatalog(
	topics TopicStore,
	sources SourceStore,
	readStatus ReadStatusStore,
	pages PageFetcher,
	txManager TransactionManager,
	logger *slog.Logger,
) *Catalog {
	return &Catalog{
		topics:     topics,
		sources:    sources,
		readStatus: readStatus,
		pages:      pages,
		txManager:  txManager,
		logger:     logger.With("component", "catalog"),
	}
}

func (c *Catalog) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	topics, err := c.topics.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// CreateTopic stores a topic with its sources. Without explicit sources the
// topic gets a Google News search feed for its keyword.
func (c *Catalog) CreateTopic(ctx context.Context, keyword string, sources []NewSource) (*domain.Topic, []domain.Source, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil, fmt.Errorf("%w: keyword is required", domain.ErrInvalidTopic)
	}
	if utf8.RuneCountInString(keyword) > domain.MaxKeywordLength {
		return nil, nil, fmt.Errorf("%w: keyword must be at most %d characters", domain.ErrInvalidTopic, domain.MaxKeywordLength)
	}

	if len(sources) == 0 {
		score := fallbackReliabilityScore
		sources = []NewSource{{
			URL:              GoogleNewsFeedURL(keyword),
			Name:             fallbackSourceName,
			Type:             domain.SourceRSS,
			ReliabilityScore: &score,
		}}
	}

	prepared := make([]domain.Source, 0, len(sources))
	for _, in := range sources {
		src, err := prepareSource(in)
		if err != nil {
			return nil, nil, err
		}
		prepared = append(prepared, src)
	}

	topic := &domain.Topic{Keyword: keyword, IsActive: true}
	err := c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.topics.Create(txCtx, topic); err != nil {
			return fmt.Errorf("create topic: %w", err)
		}
		for i := range prepared {
			prepared[i].TopicID = topic.ID
			if err := c.sources.Create(txCtx, &prepared[i]); err != nil {
				return fmt.Errorf("create source: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info("topic created",
		"topic_id", topic.ID,
		"keyword", topic.Keyword,
		"sources", len(prepared),
	)

	return topic, prepared, nil
}

func (c *Catalog) SetTopicActive(ctx context.Context, id int64, active bool) error {
	if err := c.topics.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set topic %d active: %w", id, err)
	}
	return nil
}

// DeleteTopic removes the topic and everything below it.
func (c *Catalog) DeleteTopic(ctx context.Context, id int64) error {
	if err := c.topics.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete topic %d: %w", id, err)
	}
	c.logger.Info("topic deleted", "topic_id", id)
	return nil
}

// AddSource registers a source. For website sources it also reports a feed
// advertised by the page, if any; the caller decides whether to use it.
func (c *Catalog) AddSource(ctx context.Context, topicID int64, in NewSource) (*domain.Source, string, error) {
	src, err := prepareSource(in)
	if err != nil {
		return nil, "", err
	}
	src.TopicID = topicID

	if err := c.sources.Create(ctx, &src); err != nil {
		return nil, "", fmt.Errorf("create source: %w", err)
	}

	var discovered string
	if src.Type == domain.SourceWebsite && c.pages != nil {
		feed, err := c.pages.DiscoverFeed(ctx, src.URL)
		if err != nil {
			c.logger.Debug("feed discovery failed", "url", src.URL, "error", err)
		} else {
			discovered = feed
		}
	}

	return &src, discovered, nil
}

func (c *Catalog) DeleteSource(ctx context.Context, id int64) error {
	if err := c.sources.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return nil
}

func (c *Catalog) MarkRead(ctx context.Context, articleID int64) error {
	if err := c.readStatus.MarkRead(ctx, articleID); err != nil {
		return fmt.Errorf("mark article %d read: %w", articleID, err)
	}
	return nil
}

func (c *Catalog) MarkUnread(ctx context.Context, articleID int64) error {
	if err := c.readStatus.MarkUnread(ctx, articleID); err != nil {
		return fmt.Errorf("mark article %d unread: %w", articleID, err)
	}
	return nil
}

// GoogleNewsFeedURL builds the Japanese-locale Google News search feed for keyword.
func GoogleNewsFeedURL(keyword string) string {
	q := strings.ReplaceAll(url.QueryEscape(keyword), "+", "%20")
	return "https://news.google.com/rss/search?q=" + q + "&hl=ja&gl=JP&ceid=JP:ja"
}

func prepareSource(in NewSource) (domain.Source, error) {
	rawURL := strings.TrimSpace(in.URL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Source{}, fmt.Errorf("%w: url must be an absolute http(s) url", domain.ErrInvalidSource)
	}

	typ := in.Type
	if typ == "" {
		typ = domain.SourceRSS
	}
	if !typ.Valid() {
		return domain.Source{}, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidSource, typ)
	}

	score := DefaultReliabilityScore
	if in.ReliabilityScore != nil {
		score = *in.ReliabilityScore
	}
	if score < 0 || score > 100 {
		return domain.Source{}, fmt.Errorf("%w: reliability_score must be between 0 and 100", domain.ErrInvalidSource)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = u.Host
	}

	return domain.Source{
		URL:              rawURL,
		Name:             name,
		Type:             typ,
		ReliabilityScore: score,
	}, nil
}
