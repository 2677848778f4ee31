package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/enrich/mocks"
)

type EnricherTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockProvider
	enricher *Enricher
}

func (s *EnricherTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	s.enricher = NewEnricher(s.provider, Config{
		MaxInputChars: 20,
		CallTimeout:   time.Second,
		Analysis:      true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *EnricherTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestEnricherTestSuite(t *testing.T) {
	suite.Run(t, new(EnricherTestSuite))
}

func (s *EnricherTestSuite) TestEnrich_AllFields() {
	ctx := context.Background()
	candidate := domain.Candidate{Title: "Title", URL: "https://x/1", Content: strings.Repeat("あ", 50)}
	analysis := domain.Analysis{ImportanceScore: 70, Sentiment: domain.SentimentPositive, Tags: []string{"ai"}}

	s.provider.EXPECT().Summarize(gomock.Any(), strings.Repeat("あ", 20)).Return("summary", nil)
	s.provider.EXPECT().Embed(gomock.Any(), "summary").Return([]float32{1, 2}, nil)
	s.provider.EXPECT().Analyze(gomock.Any(), "Title", strings.Repeat("あ", 20)).Return(analysis, nil)

	out := s.enricher.Enrich(ctx, candidate)

	s.Equal("summary", out.Summary)
	s.Equal([]float32{1, 2}, out.Embedding)
	s.Require().NotNil(out.Analysis)
	s.Equal(70, out.Analysis.ImportanceScore)
}

func (s *EnricherTestSuite) TestEnrich_SummaryFailureFallsBackForEmbedding() {
	ctx := context.Background()
	candidate := domain.Candidate{Title: "T", URL: "https://x/2", Content: "body"}

	s.provider.EXPECT().Summarize(gomock.Any(), "body").Return("", errors.New("quota"))
	s.provider.EXPECT().Embed(gomock.Any(), "T\n\nbody").Return([]float32{3}, nil)
	s.provider.EXPECT().Analyze(gomock.Any(), "T", "body").Return(domain.Analysis{}, errors.New("bad json"))

	out := s.enricher.Enrich(ctx, candidate)

	s.Empty(out.Summary)
	s.Equal([]float32{3}, out.Embedding)
	s.Nil(out.Analysis)
}

func (s *EnricherTestSuite) TestEnrich_EverythingFails() {
	ctx := context.Background()
	candidate := domain.Candidate{Title: "T", URL: "https://x/3", Content: "body"}

	s.provider.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return("", errors.New("down"))
	s.provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, errors.New("down"))
	s.provider.EXPECT().Analyze(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Analysis{}, errors.New("down"))

	out := s.enricher.Enrich(ctx, candidate)

	s.Empty(out.Summary)
	s.Empty(out.Embedding)
	s.Nil(out.Analysis)
}

func (s *EnricherTestSuite) TestEnrich_AnalysisDisabled() {
	s.enricher.cfg.Analysis = false
	candidate := domain.Candidate{Title: "T", URL: "https://x/4", Content: "body"}

	s.provider.EXPECT().Summarize(gomock.Any(), "body").Return("s", nil)
	s.provider.EXPECT().Embed(gomock.Any(), "s").Return([]float32{1}, nil)

	out := s.enricher.Enrich(context.Background(), candidate)

	s.Equal("s", out.Summary)
	s.Nil(out.Analysis)
}

func (s *EnricherTestSuite) TestEnrich_CallTimeout() {
	s.enricher.cfg.CallTimeout = 10 * time.Millisecond
	s.enricher.cfg.Analysis = false
	candidate := domain.Candidate{Title: "T", URL: "https://x/5", Content: "body"}

	s.provider.EXPECT().Summarize(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	)
	s.provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1}, nil)

	out := s.enricher.Enrich(context.Background(), candidate)

	s.Empty(out.Summary)
	s.Equal([]float32{1}, out.Embedding)
}

func TestTruncate(t *testing.T) {
	if got := Truncate("日本語テキスト", 3); got != "日本語" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := Truncate("abc", 3); got != "abc" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
