package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"intel_fetcher/internal/domain"
)

const ActionCreated = "created"

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "publisher"),
	}, nil
}

// declare sets up a durable direct exchange with one bound queue.
func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ArticlePayload is the article as seen by downstream consumers. The
// embedding and full content stay in the database.
type ArticlePayload struct {
	ID              int64             `json:"id"`
	SourceID        int64             `json:"source_id"`
	Title           string            `json:"title"`
	URL             string            `json:"url"`
	Summary         string            `json:"summary"`
	PublishedAt     time.Time         `json:"published_at"`
	CreatedAt       time.Time         `json:"created_at"`
	ImportanceScore *int              `json:"importance_score"`
	Sentiment       *domain.Sentiment `json:"sentiment"`
	Tags            []string          `json:"tags"`
	Entities        []domain.Entity   `json:"entities"`
}

type ArticleMessage struct {
	Action    string         `json:"action"`
	Article   ArticlePayload `json:"article"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewArticleMessage(article *domain.Article, now time.Time) ArticleMessage {
	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}
	entities := article.Entities
	if entities == nil {
		entities = []domain.Entity{}
	}

	return ArticleMessage{
		Action: ActionCreated,
		Article: ArticlePayload{
			ID:              article.ID,
			SourceID:        article.SourceID,
			Title:           article.Title,
			URL:             article.URL,
			Summary:         article.Summary,
			PublishedAt:     article.PublishedAt,
			CreatedAt:       article.CreatedAt,
			ImportanceScore: article.ImportanceScore,
			Sentiment:       article.Sentiment,
			Tags:            tags,
			Entities:        entities,
		},
		Timestamp: now.UTC(),
	}
}

// PublishCreated announces a newly stored article.
func (r *RabbitMQ) PublishCreated(ctx context.Context, article *domain.Article) error {
	body, err := json.Marshal(NewArticleMessage(article, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published article", "article_id", article.ID, "url", article.URL)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
