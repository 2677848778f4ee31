package domain

import "time"

// Candidate is a freshly fetched item that has not been deduplicated yet.
type Candidate struct {
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time
}

// Page is the result of fetching a plain website source.
type Page struct {
	Candidate Candidate
	// FeedURL is an RSS/Atom link advertised in the document head, if any.
	FeedURL string
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityTechnology   EntityType = "technology"
	EntityEvent        EntityType = "event"
	EntityLocation     EntityType = "location"
	EntityOther        EntityType = "other"
)

// NormalizeEntityType maps anything outside the known set to EntityOther.
func NormalizeEntityType(t string) EntityType {
	switch EntityType(t) {
	case EntityPerson, EntityOrganization, EntityTechnology, EntityEvent, EntityLocation:
		return EntityType(t)
	default:
		return EntityOther
	}
}

type Entity struct {
	Name string     `json:"name" db:"name"`
	Type EntityType `json:"type" db:"type"`
}

// Analysis is the structured bundle returned by the analysis provider call.
type Analysis struct {
	ImportanceScore int
	Sentiment       Sentiment
	Tags            []string
	Entities        []Entity
}

// Enrichment holds every AI-derived field; zero values mean the call degraded.
type Enrichment struct {
	Summary   string
	Embedding []float32
	Analysis  *Analysis
}

type Article struct {
	ID              int64
	SourceID        int64
	Title           string
	URL             string
	Content         string
	Summary         string
	PublishedAt     time.Time
	CreatedAt       time.Time
	ImportanceScore *int
	Sentiment       *Sentiment
	Tags            []string
	Entities        []Entity
	Embedding       []float32
}

// NewArticle builds the persisted record for a candidate credited to sourceID.
func NewArticle(sourceID int64, c Candidate, e Enrichment) Article {
	article := Article{
		SourceID:    sourceID,
		Title:       c.Title,
		URL:         c.URL,
		Content:     c.Content,
		Summary:     e.Summary,
		PublishedAt: c.PublishedAt,
		Embedding:   e.Embedding,
	}

	if e.Analysis != nil {
		score := e.Analysis.ImportanceScore
		sentiment := e.Analysis.Sentiment
		article.ImportanceScore = &score
		if sentiment != "" {
			article.Sentiment = &sentiment
		}
		article.Tags = e.Analysis.Tags
		article.Entities = e.Analysis.Entities
	}

	return article
}
