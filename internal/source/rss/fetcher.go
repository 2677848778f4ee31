package rss

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/source"
)

// Getter is the HTTP layer the fetcher reads feeds through.
type Getter interface {
	Get(ctx context.Context, url, accept string) ([]byte, error)
}

// Fetcher turns an RSS, Atom or JSON feed into candidates.
type Fetcher struct {
	getter Getter
	parser *gofeed.Parser
	now    func() time.Time
}

func NewFetcher(getter Getter) *Fetcher {
	return &Fetcher{
		getter: getter,
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]domain.Candidate, error) {
	body, err := f.getter.Get(ctx, feedURL, source.AcceptFeed)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	base, _ := url.Parse(feedURL)
	fetchedAt := f.now()

	candidates := make([]domain.Candidate, 0, len(feed.Items))
	seen := make(map[string]struct{}, len(feed.Items))

	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		link := resolveLink(base, item.Link)
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}

		content := strings.TrimSpace(item.Content)
		if content == "" {
			content = strings.TrimSpace(item.Description)
		}

		publishedAt := fetchedAt
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		candidates = append(candidates, domain.Candidate{
			Title:       strings.TrimSpace(item.Title),
			URL:         link,
			Content:     content,
			PublishedAt: publishedAt,
		})
	}

	return candidates, nil
}

func resolveLink(base *url.URL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if ref.IsAbs() || base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
