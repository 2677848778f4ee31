package web

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/source"
)

type Getter interface {
	Get(ctx context.Context, url, accept string) ([]byte, error)
}

// Fetcher reads a single web page as one candidate.
type Fetcher struct {
	getter Getter
	now    func() time.Time
}

func NewFetcher(getter Getter) *Fetcher {
	return &Fetcher{getter: getter, now: time.Now}
}

func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (domain.Page, error) {
	doc, err := f.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.Page{}, err
	}

	base, _ := url.Parse(pageURL)

	// title first: content extraction strips header elements from doc
	title := extractTitle(doc, pageURL)

	return domain.Page{
		Candidate: domain.Candidate{
			Title:       title,
			URL:         pageURL,
			Content:     extractContent(doc),
			PublishedAt: extractPublishedAt(doc, f.now()),
		},
		FeedURL: extractFeedURL(doc, base),
	}, nil
}

// DiscoverFeed returns the first RSS/Atom link advertised by the page, or "".
func (f *Fetcher) DiscoverFeed(ctx context.Context, pageURL string) (string, error) {
	doc, err := f.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	base, _ := url.Parse(pageURL)
	return extractFeedURL(doc, base), nil
}

func (f *Fetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := f.getter.Get(ctx, pageURL, source.AcceptHTML)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractTitle(doc *goquery.Document, fallback string) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = collapse(og); og != "" {
			return og
		}
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return fallback
}

func extractContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, header, footer, noscript").Remove()

	for _, selector := range []string{"article", "main"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := collapse(sel.Text()); text != "" {
				return text
			}
		}
	}

	var parts []string
	doc.Find("body p").Each(func(_ int, p *goquery.Selection) {
		if text := collapse(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}

	return collapse(doc.Find("body").Text())
}

func extractPublishedAt(doc *goquery.Document, fallback time.Time) time.Time {
	candidates := []string{
		doc.Find(`meta[property="article:published_time"]`).First().AttrOr("content", ""),
		doc.Find("time[datetime]").First().AttrOr("datetime", ""),
	}

	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
	}

	return fallback
}

func extractFeedURL(doc *goquery.Document, base *url.URL) string {
	var feedURL string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
		typ := strings.ToLower(strings.TrimSpace(link.AttrOr("type", "")))
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return true
		}

		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		feedURL = ref.String()
		return false
	})
	return feedURL
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
