package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intel_fetcher/internal/source"
)

const samplePage = `<!doctype html>
<html>
<head>
	<title>Page Title</title>
	<meta property="og:title" content="OG Title">
	<meta property="article:published_time" content="2024-03-05T09:30:00+09:00">
	<link rel="stylesheet" href="/style.css">
	<link rel="alternate" type="application/rss+xml" href="/feed.xml">
	<script>var tracking = true;</script>
</head>
<body>
	<header>Site header</header>
	<nav>Home | About</nav>
	<article>
		<h1>Headline</h1>
		<p>First   paragraph.</p>
		<p>Second paragraph.</p>
		<script>alert("x")</script>
	</article>
	<footer>Copyright</footer>
</body>
</html>`

func newFetcher(t *testing.T) *Fetcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := source.NewClient(source.Config{Timeout: 2 * time.Second, MaxAttempts: 1}, logger)
	return NewFetcher(client)
}

func TestFetch_ExtractsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := newFetcher(t).Fetch(context.Background(), srv.URL+"/news/1")
	require.NoError(t, err)

	assert.Equal(t, "OG Title", page.Candidate.Title)
	assert.Equal(t, srv.URL+"/news/1", page.Candidate.URL)
	assert.Equal(t, "Headline First paragraph. Second paragraph.", page.Candidate.Content)
	assert.True(t, page.Candidate.PublishedAt.Equal(time.Date(2024, 3, 5, 0, 30, 0, 0, time.UTC)))
	assert.Equal(t, srv.URL+"/feed.xml", page.FeedURL)
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newFetcher(t).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page")
}

func TestDiscoverFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head>
			<link rel="alternate" type="application/atom+xml" href="https://example.com/atom">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	feed, err := newFetcher(t).DiscoverFeed(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/atom", feed)
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestExtractTitle_Fallbacks(t *testing.T) {
	assert.Equal(t, "From title", extractTitle(doc(t, `<html><head><title> From  title </title></head></html>`), "u"))
	assert.Equal(t, "From h1", extractTitle(doc(t, `<html><body><h1>From h1</h1></body></html>`), "u"))
	assert.Equal(t, "https://example.com/x", extractTitle(doc(t, `<html><body></body></html>`), "https://example.com/x"))
}

func TestExtractContent_Fallbacks(t *testing.T) {
	main := doc(t, `<html><body><nav>menu</nav><main>Main body</main></body></html>`)
	assert.Equal(t, "Main body", extractContent(main))

	paragraphs := doc(t, `<html><body><div><p>One</p><p> </p><p>Two</p></div></body></html>`)
	assert.Equal(t, "One\nTwo", extractContent(paragraphs))
}

func TestExtractPublishedAt(t *testing.T) {
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	withTime := doc(t, `<html><body><time datetime="2024-02-03">Feb 3</time></body></html>`)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), extractPublishedAt(withTime, fallback))

	without := doc(t, `<html><body><time>yesterday</time></body></html>`)
	assert.Equal(t, fallback, extractPublishedAt(without, fallback))
}
