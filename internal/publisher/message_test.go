package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intel_fetcher/internal/domain"
	"intel_fetcher/testdata/utils"
)

func TestNewArticleMessage(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	article := &domain.Article{
		ID:              12,
		SourceID:        3,
		Title:           "Chip export rules",
		URL:             "https://news.example/chips",
		Content:         "long body",
		Summary:         "short",
		PublishedAt:     now.Add(-time.Hour),
		CreatedAt:       now,
		ImportanceScore: utils.Ptr(70),
		Sentiment:       utils.Ptr(domain.SentimentNegative),
		Tags:            []string{"chips"},
		Entities:        []domain.Entity{{Name: "TSMC", Type: domain.EntityOrganization}},
		Embedding:       []float32{0.1, 0.2},
	}

	body, err := json.Marshal(NewArticleMessage(article, now))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "created", raw["action"])

	payload := raw["article"].(map[string]any)
	assert.Equal(t, float64(12), payload["id"])
	assert.Equal(t, float64(3), payload["source_id"])
	assert.Equal(t, "negative", payload["sentiment"])
	assert.Equal(t, float64(70), payload["importance_score"])
	assert.NotContains(t, payload, "embedding")
	assert.NotContains(t, payload, "content")
}

func TestNewArticleMessage_Degraded(t *testing.T) {
	msg := NewArticleMessage(&domain.Article{ID: 1, URL: "https://a.example"}, time.Now())

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	payload := raw["article"].(map[string]any)
	assert.Nil(t, payload["importance_score"])
	assert.Nil(t, payload["sentiment"])
	assert.Equal(t, []any{}, payload["tags"])
	assert.Equal(t, []any{}, payload["entities"])
}
