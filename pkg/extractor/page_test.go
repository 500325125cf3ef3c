package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/siphon/internal/models"
)

func newTestPage() *Page {
	return NewPageWithConfig(PageConfig{RateLimit: 1000})
}

func TestPageExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head>
					<title>Fallback Title</title>
					<meta property="article:author" content="Jane Doe">
				</head>
				<body>
					<nav><a href="/elsewhere">nav link</a></nav>
					<article>
						<h1>Scaling Postgres</h1>
						<p>We sharded the database.</p>
						<h2>Lessons</h2>
						<pre>SELECT 1;</pre>
						<ul><li>first</li><li>second</li></ul>
					</article>
				</body>
			</html>
		`))
	}))
	defer server.Close()

	units, err := newTestPage().Extract(context.Background(), server.URL, "")
	require.NoError(t, err)
	require.Len(t, units, 1)

	unit := units[0]
	assert.Equal(t, "Scaling Postgres", unit.Title)
	assert.Equal(t, "Jane Doe", unit.Author)
	assert.Equal(t, "blog", unit.ContentType)
	assert.Equal(t, server.URL, unit.SourceURL)

	assert.Contains(t, unit.Content, "# Scaling Postgres")
	assert.Contains(t, unit.Content, "We sharded the database.")
	assert.Contains(t, unit.Content, "## Lessons")
	assert.Contains(t, unit.Content, "```\nSELECT 1;\n```")
	assert.Contains(t, unit.Content, "- first\n- second")
	// Navigation chrome outside the article stays out.
	assert.NotContains(t, unit.Content, "nav link")
}

func TestPageExtractTitleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Only A Title</title></head><body><p>text</p></body></html>`))
	}))
	defer server.Close()

	unit, err := newTestPage().ExtractOne(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Only A Title", unit.Title)

	bare := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>text</p></body></html>`))
	}))
	defer bare.Close()

	unit, err = newTestPage().ExtractOne(context.Background(), bare.URL)
	require.NoError(t, err)
	assert.Equal(t, "Untitled", unit.Title)
}

func TestPageExtractStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestPage().ExtractOne(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestRenderMarkdownSkipsNestedBlocks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<body>
			<div><p>wrapped in a div</p></div>
			<blockquote><p>quoted words</p></blockquote>
			<ol><li>one</li><li>two</li></ol>
		</body>
	`))
	require.NoError(t, err)

	out := renderMarkdown(doc.Find("body"))

	assert.Equal(t, 1, strings.Count(out, "wrapped in a div"))
	assert.Equal(t, 1, strings.Count(out, "quoted words"))
	assert.Contains(t, out, "1. one\n2. two")
}

func TestCollectLinks(t *testing.T) {
	page, err := url.Parse("https://example.com/blog/index.html")
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<body>
			<a href="post1.html">relative</a>
			<a href="/top-level">rooted</a>
			<a href="https://example.com/absolute#section">absolute with fragment</a>
			<a href="https://other.com/offsite">offsite</a>
			<a href="mailto:team@example.com">mail</a>
			<a href="javascript:void(0)">js</a>
			<a href="post1.html">duplicate</a>
		</body>
	`))
	require.NoError(t, err)

	links := collectLinks(doc, page, "example.com")

	assert.Equal(t, []string{
		"https://example.com/blog/post1.html",
		"https://example.com/top-level",
		"https://example.com/absolute",
	}, links)
}
