package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/xhad/siphon/internal/models"
)

// Unit is one piece of extracted content before persistence.
type Unit struct {
	Title       string
	Content     string
	ContentType string
	SourceURL   string
	Author      string
	Language    string
}

// ContentExtractor pulls content units out of whatever a URL points at.
// Implementations decide how many units a single URL yields: a plain
// page gives one, a crawled blog or a Drive folder gives many.
type ContentExtractor interface {
	Name() string
	Extract(ctx context.Context, pageURL, instructions string) ([]Unit, error)
}

type rule struct {
	matches func(u *url.URL) bool
	ext     ContentExtractor
}

// Registry picks the extractor for a URL. The first matching rule
// wins; the fallback handles everything else.
type Registry struct {
	rules    []rule
	fallback ContentExtractor
}

func NewRegistry(fallback ContentExtractor) *Registry {
	return &Registry{fallback: fallback}
}

// RegisterHost routes URLs whose hostname equals host, or is a
// subdomain of it, to the given extractor.
func (r *Registry) RegisterHost(host string, ext ContentExtractor) {
	r.rules = append(r.rules, rule{
		matches: func(u *url.URL) bool { return matchesHost(u.Hostname(), host) },
		ext:     ext,
	})
}

// For resolves the extractor responsible for a URL.
func (r *Registry) For(rawURL string) (ContentExtractor, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url %q: %v", models.ErrExtraction, rawURL, err)
	}

	for _, rule := range r.rules {
		if rule.matches(u) {
			return rule.ext, nil
		}
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: no extractor for %s", models.ErrExtraction, rawURL)
	}
	return r.fallback, nil
}

func matchesHost(hostname, host string) bool {
	return hostname == host || strings.HasSuffix(hostname, "."+host)
}
