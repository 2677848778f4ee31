// Package ai talks to an OpenAI-compatible API for summaries, embeddings and
// structured article analysis.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"intel_fetcher/internal/domain"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultLanguage       = "Japanese"
)

var ErrNotConfigured = errors.New("ai: api key is not configured")

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	// Dimensions rejects vectors of any other length when set.
	Dimensions     int
	Language       string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// Client is safe for concurrent use; all calls share one token bucket.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	chatModel      string
	embeddingModel string
	dimensions     int
	language       string
	limiter        *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}

	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		dimensions:     cfg.Dimensions,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		language:       cfg.Language,
		limiter:        rate.NewLimiter(limit, cfg.Burst),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type analysisPayload struct {
	ImportanceScore float64  `json:"importance_score"`
	Sentiment       string   `json:"sentiment"`
	Tags            []string `json:"tags"`
	Entities        []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
}

const summaryPrompt = `Summarize the following text in %s.
Focus on the key facts, insights, and implications.
Keep it concise (around 200-300 characters).
Return only the summary.`

const analysisPrompt = `You analyse news articles for an intelligence briefing.
Return a JSON object with exactly these keys:
  "importance_score": integer 0-100, how significant the article is,
  "sentiment": one of "positive", "neutral", "negative",
  "tags": up to 8 short topical tags,
  "entities": list of {"name": string, "type": one of "person", "organization", "technology", "event", "location", "other"}.
Write tags in %s.`

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	out, err := c.chat(ctx, chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(summaryPrompt, c.language)},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	summary := strings.TrimSpace(out)
	if summary == "" {
		return "", errors.New("summarize: empty completion")
	}
	return summary, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Model: c.embeddingModel, Input: text}, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embed: empty embedding")
	}
	vec := resp.Data[0].Embedding
	if c.dimensions > 0 && len(vec) != c.dimensions {
		return nil, fmt.Errorf("embed: got %d dimensions, want %d", len(vec), c.dimensions)
	}
	return vec, nil
}

func (c *Client) Analyze(ctx context.Context, title, content string) (domain.Analysis, error) {
	out, err := c.chat(ctx, chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(analysisPrompt, c.language)},
			{Role: "user", Content: "Title: " + title + "\n\n" + content},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("analyze: %w", err)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &payload); err != nil {
		return domain.Analysis{}, fmt.Errorf("analyze: decode payload: %w", err)
	}

	return normalizeAnalysis(payload), nil
}

func (c *Client) chat(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provider error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalizeAnalysis(p analysisPayload) domain.Analysis {
	score := int(math.Round(min(max(p.ImportanceScore, 0), 100)))

	analysis := domain.Analysis{
		ImportanceScore: score,
		Sentiment:       normalizeSentiment(p.Sentiment),
	}

	seenTags := make(map[string]struct{})
	for _, tag := range p.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seenTags[strings.ToLower(tag)]; ok {
			continue
		}
		seenTags[strings.ToLower(tag)] = struct{}{}
		analysis.Tags = append(analysis.Tags, tag)
	}

	seenEntities := make(map[domain.Entity]struct{})
	for _, e := range p.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		entity := domain.Entity{
			Name: name,
			Type: domain.NormalizeEntityType(strings.ToLower(strings.TrimSpace(e.Type))),
		}
		if _, ok := seenEntities[entity]; ok {
			continue
		}
		seenEntities[entity] = struct{}{}
		analysis.Entities = append(analysis.Entities, entity)
	}

	return analysis
}

func normalizeSentiment(s string) domain.Sentiment {
	switch domain.Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case domain.SentimentPositive:
		return domain.SentimentPositive
	case domain.SentimentNegative:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite json_object mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
