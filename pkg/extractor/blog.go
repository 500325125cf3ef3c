package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/llm"
)

// maxConcurrentFetches bounds how many directory pages of one crawl
// level are fetched at once. The page rate limiter still applies.
const maxConcurrentFetches = 4

// LinkClassifier is the LLM surface the blog extractor crawls with.
type LinkClassifier interface {
	ClassifyURL(ctx context.Context, pageURL, instructions string) (llm.Classification, error)
	ClassifyLinks(ctx context.Context, instructions string, urls []string) ([]llm.Classification, error)
}

// BlogConfig bounds the crawl.
type BlogConfig struct {
	MaxDepth int
	MaxPages int
}

// Blog crawls a site from a start URL, uses the classifier to tell
// link directories from posts, and extracts every post that matches
// the caller's instructions.
type Blog struct {
	config     BlogConfig
	pages      *Page
	classifier LinkClassifier
}

func NewBlog(pages *Page, classifier LinkClassifier) *Blog {
	return NewBlogWithConfig(BlogConfig{}, pages, classifier)
}

func NewBlogWithConfig(config BlogConfig, pages *Page, classifier LinkClassifier) *Blog {
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.MaxPages == 0 {
		config.MaxPages = 50
	}

	return &Blog{
		config:     config,
		pages:      pages,
		classifier: classifier,
	}
}

func (b *Blog) Name() string { return "blog" }

func (b *Blog) Extract(ctx context.Context, startURL, instructions string) ([]Unit, error) {
	start, err := b.classifier.ClassifyURL(ctx, startURL, instructions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}

	crawled := b.crawl(ctx, startURL, start, instructions)

	var units []Unit
	for _, verdict := range crawled {
		if !shouldExtract(verdict, startURL) {
			continue
		}

		unit, err := b.pages.ExtractOne(ctx, verdict.URL)
		if err != nil {
			if ctx.Err() != nil {
				return units, ctx.Err()
			}
			slog.Warn("Skipping unreadable post", "url", verdict.URL, "error", err)
			continue
		}
		units = append(units, unit)
	}

	return units, nil
}

// shouldExtract gates which crawled links become content. Discovered
// links must be posts matching the instructions. The start URL was
// asked for explicitly, so anything but a directory is extracted.
func shouldExtract(verdict llm.Classification, startURL string) bool {
	if verdict.URL == startURL {
		return verdict.Kind != llm.KindDirectory
	}
	return verdict.Kind == llm.KindPost && verdict.Matches
}

// crawl walks directory pages breadth-first, classifying discovered
// links level by level. Verdicts come back in discovery order.
func (b *Blog) crawl(ctx context.Context, startURL string, start llm.Classification, instructions string) []llm.Classification {
	crawled := []llm.Classification{start}
	if start.Kind != llm.KindDirectory {
		return crawled
	}

	base, err := url.Parse(startURL)
	if err != nil {
		return crawled
	}

	visited := map[string]bool{startURL: true}
	dirs := []string{startURL}

	for depth := 0; depth < b.config.MaxDepth && len(dirs) > 0; depth++ {
		levelLinks, err := b.fetchLevel(ctx, dirs, base.Host)
		if err != nil {
			return crawled
		}

		var discovered []string
		for _, links := range levelLinks {
			for _, link := range links {
				if visited[link] || len(visited) >= b.config.MaxPages {
					continue
				}
				visited[link] = true
				discovered = append(discovered, link)
			}
		}
		if len(discovered) == 0 {
			break
		}

		verdicts, err := b.classifier.ClassifyLinks(ctx, instructions, discovered)
		if err != nil {
			return crawled
		}

		dirs = nil
		for _, v := range verdicts {
			crawled = append(crawled, v)
			if v.Kind == llm.KindDirectory {
				dirs = append(dirs, v.URL)
			}
		}
	}

	return crawled
}

// fetchLevel fetches every directory page of one crawl level
// concurrently and returns each page's anchors in the level's order.
// Unreadable pages are skipped; only cancellation stops the level.
func (b *Blog) fetchLevel(ctx context.Context, dirs []string, host string) ([][]string, error) {
	links := make([][]string, len(dirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, dir := range dirs {
		g.Go(func() error {
			dirURL, err := url.Parse(dir)
			if err != nil {
				return nil
			}
			doc, err := b.pages.fetchDocument(gctx, dir)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Skipping unreadable directory", "url", dir, "error", err)
				return nil
			}
			links[i] = collectLinks(doc, dirURL, host)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return links, nil
}
