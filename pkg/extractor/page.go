package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/siphon/internal/models"
)

// PageConfig holds fetch settings shared by the HTML extractors.
type PageConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second
	UserAgent string
}

// Page fetches a single HTML page and distills it into one content
// unit. The blog extractor reuses it for every matched post.
type Page struct {
	config  PageConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewPage() *Page {
	return NewPageWithConfig(PageConfig{})
}

func NewPageWithConfig(config PageConfig) *Page {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; siphon/1.0)"
	}

	return &Page{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func (p *Page) Name() string { return "page" }

func (p *Page) Extract(ctx context.Context, pageURL, instructions string) ([]Unit, error) {
	unit, err := p.ExtractOne(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return []Unit{unit}, nil
}

// ExtractOne fetches one page and builds its content unit.
func (p *Page) ExtractOne(ctx context.Context, pageURL string) (Unit, error) {
	doc, err := p.fetchDocument(ctx, pageURL)
	if err != nil {
		return Unit{}, err
	}
	return buildUnit(doc, pageURL), nil
}

func (p *Page) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", models.ErrExtraction, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: status %d", models.ErrExtraction, pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", models.ErrExtraction, pageURL, err)
	}
	return doc, nil
}

// buildUnit distills a parsed page: first h1 or <title> for the title,
// article/main containers before falling back to body, and a markdown
// rendering of the block elements inside.
func buildUnit(doc *goquery.Document, pageURL string) Unit {
	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}

	author, _ := doc.Find(`meta[property="article:author"]`).Attr("content")
	if author == "" {
		author, _ = doc.Find(`meta[name="author"]`).Attr("content")
	}

	container := doc.Find("article").First()
	if container.Length() == 0 {
		container = doc.Find("main").First()
	}
	if container.Length() == 0 {
		container = doc.Find("body").First()
	}

	content := renderMarkdown(container)
	if content == "" {
		content = collapseSpace(container.Text())
	}

	return Unit{
		Title:       title,
		Content:     content,
		ContentType: "blog",
		SourceURL:   pageURL,
		Author:      strings.TrimSpace(author),
	}
}

const blockSelector = "p, h1, h2, h3, h4, pre, ul, ol, blockquote"

// renderMarkdown walks the container's block elements in document
// order and renders a plain markdown approximation.
func renderMarkdown(container *goquery.Selection) string {
	var parts []string
	container.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		// Blocks nested in another matched block are covered by the
		// outer render already.
		if sel.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := renderBlock(sel); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func renderBlock(sel *goquery.Selection) string {
	switch name := goquery.NodeName(sel); name {
	case "h1":
		return heading("# ", sel)
	case "h2":
		return heading("## ", sel)
	case "h3":
		return heading("### ", sel)
	case "h4":
		return heading("#### ", sel)
	case "pre":
		code := strings.Trim(sel.Text(), "\n")
		if code == "" {
			return ""
		}
		return "```\n" + code + "\n```"
	case "ul", "ol":
		var items []string
		sel.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			text := collapseSpace(li.Text())
			if text == "" {
				return
			}
			if name == "ol" {
				items = append(items, fmt.Sprintf("%d. %s", i+1, text))
			} else {
				items = append(items, "- "+text)
			}
		})
		return strings.Join(items, "\n")
	default:
		return collapseSpace(sel.Text())
	}
}

func heading(prefix string, sel *goquery.Selection) string {
	text := collapseSpace(sel.Text())
	if text == "" {
		return ""
	}
	return prefix + text
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// collectLinks returns absolute http(s) links from a page in document
// order, resolved against the page's own URL, restricted to host, with
// fragments stripped and duplicates removed.
func collectLinks(doc *goquery.Document, page *url.URL, host string) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		abs := page.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if abs.Host != host {
			return
		}
		abs.Fragment = ""

		link := abs.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})

	return links
}
