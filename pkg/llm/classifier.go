package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Link kinds the classifier can assign.
const (
	KindDirectory = "directory"
	KindPost      = "post"
	KindUnknown   = "unknown"
)

// Classification is the model's verdict on a single URL.
type Classification struct {
	URL     string `json:"link"`
	Kind    string `json:"linkType"`
	Matches bool   `json:"matchesWhatTheUserWants"`
}

// ClassifierConfig represents the configuration for the link classifier.
type ClassifierConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	BatchSize   int
}

// Classifier asks an LLM whether URLs are link directories or content
// posts, and whether they match the caller's instructions.
type Classifier struct {
	config ClassifierConfig
	llm    llms.Model
}

// NewClassifierWithConfig creates a new Classifier with the given configuration.
func NewClassifierWithConfig(config ClassifierConfig) (*Classifier, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.1
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	model, err := newChatModel(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Classifier{
		config: config,
		llm:    model,
	}, nil
}

func newChatModel(config *ClassifierConfig) (llms.Model, error) {
	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		return ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
	default:
		if config.Model == "" {
			config.Model = "gpt-4.1-nano"
		}
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)
	}
}

// ClassifyURL classifies a single page from its URL alone.
func (c *Classifier) ClassifyURL(ctx context.Context, pageURL, instructions string) (Classification, error) {
	prompt := fmt.Sprintf(`Given the following URL and user instructions, please classify the page.

URL: %q
User Instructions: %q

Tasks:
1. Is this URL a "directory" (a page that primarily lists links to other articles/posts) or a "post" (a single, self-contained article or content page)?
2. Based on the URL and the user instructions, does this link seem to match what the user is looking for?

Please respond in JSON format with the following keys:
- "linkType": (string) Must be one of "directory", "post", or "unknown".
- "matchesWhatTheUserWants": (boolean) true or false.`, pageURL, instructions)

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You are a helpful assistant that classifies web pages."),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithTemperature(c.config.Temperature),
		llms.WithJSONMode())
	if err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", pageURL, err)
	}

	verdict, err := parseClassification(firstChoice(resp))
	if err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", pageURL, err)
	}
	verdict.URL = pageURL
	return verdict, nil
}

// ClassifyLinks classifies URLs in batches. A failed batch degrades to
// unknown verdicts instead of aborting the whole crawl; the returned
// error is only ever the context's.
func (c *Classifier) ClassifyLinks(ctx context.Context, instructions string, urls []string) ([]Classification, error) {
	results := make([]Classification, 0, len(urls))

	for start := 0; start < len(urls); start += c.config.BatchSize {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		batch := urls[start:min(start+c.config.BatchSize, len(urls))]

		verdicts, err := c.classifyBatch(ctx, instructions, batch)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			slog.Warn("Batch classification failed", "error", err, "urls", len(batch))
			verdicts = nil
		}
		results = append(results, alignClassifications(batch, verdicts)...)
	}

	return results, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, instructions string, urls []string) ([]Classification, error) {
	var list strings.Builder
	for i, u := range urls {
		fmt.Fprintf(&list, "%d. %q\n", i+1, u)
	}

	prompt := fmt.Sprintf(`Given the following list of URLs and user instructions, please classify each page.

User Instructions: %q

URL List:
%s
For each URL, provide a JSON object with the following keys:
- "link": (string) The URL you are classifying.
- "linkType": (string) Must be one of "directory", "post", or "unknown".
- "matchesWhatTheUserWants": (boolean) true or false.

Please respond with a single JSON object containing a key "classifications", which is a list of these JSON objects, one for each URL in the original order.`, instructions, list.String())

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You are a helpful assistant that classifies web pages in batches."),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithTemperature(c.config.Temperature),
		llms.WithJSONMode())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Classifications []Classification `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(trimJSON(firstChoice(resp))), &parsed); err != nil {
		return nil, fmt.Errorf("parse batch reply: %v", err)
	}
	return parsed.Classifications, nil
}

func firstChoice(resp *llms.ContentResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Content
}

func parseClassification(reply string) (Classification, error) {
	var verdict Classification
	if err := json.Unmarshal([]byte(trimJSON(reply)), &verdict); err != nil {
		return Classification{}, fmt.Errorf("parse classifier reply: %v", err)
	}
	verdict.Kind = normalizeKind(verdict.Kind)
	return verdict, nil
}

// alignClassifications maps model verdicts back onto the requested
// urls; anything the model skipped comes back unknown.
func alignClassifications(urls []string, verdicts []Classification) []Classification {
	byURL := make(map[string]Classification, len(verdicts))
	for _, v := range verdicts {
		v.Kind = normalizeKind(v.Kind)
		byURL[v.URL] = v
	}

	aligned := make([]Classification, len(urls))
	for i, u := range urls {
		if v, ok := byURL[u]; ok {
			aligned[i] = v
		} else {
			aligned[i] = Classification{URL: u, Kind: KindUnknown}
		}
	}
	return aligned
}

func normalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindDirectory:
		return KindDirectory
	case KindPost:
		return KindPost
	}
	return KindUnknown
}

// trimJSON strips the markdown fences some models wrap around JSON.
func trimJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
