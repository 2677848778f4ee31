package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidTopic  = errors.New("invalid topic")
	ErrInvalidSource = errors.New("invalid source")
	ErrDuplicateURL  = errors.New("article url already exists")
)

const MaxKeywordLength = 50

type Topic struct {
	ID        int64     `db:"id" json:"id"`
	Keyword   string    `db:"keyword" json:"keyword"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type SourceType string

const (
	SourceRSS     SourceType = "rss"
	SourceWebsite SourceType = "website"
)

func (t SourceType) Valid() bool {
	return t == SourceRSS || t == SourceWebsite
}

type Source struct {
	ID               int64      `db:"id" json:"id"`
	TopicID          int64      `db:"topic_id" json:"topic_id"`
	URL              string     `db:"url" json:"url"`
	Name             string     `db:"name" json:"name"`
	Type             SourceType `db:"type" json:"type"`
	ReliabilityScore int        `db:"reliability_score" json:"reliability_score"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// SourceFilter narrows the sources an ingestion run walks.
type SourceFilter struct {
	TopicID    *int64
	ActiveOnly bool
}
