package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeChatModel replays a canned reply (or error) per GenerateContent
// call, in call order.
type fakeChatModel struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	var reply string
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func newTestClassifier(model llms.Model, batchSize int) *Classifier {
	return &Classifier{
		config: ClassifierConfig{Temperature: 0.1, BatchSize: batchSize},
		llm:    model,
	}
}

func TestClassifyURL(t *testing.T) {
	fake := &fakeChatModel{replies: []string{
		`{"linkType": "directory", "matchesWhatTheUserWants": false}`,
	}}
	c := newTestClassifier(fake, 10)

	verdict, err := c.ClassifyURL(context.Background(), "https://example.com/blog", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/blog", verdict.URL)
	assert.Equal(t, KindDirectory, verdict.Kind)
	assert.False(t, verdict.Matches)
}

func TestClassifyURLGarbledReply(t *testing.T) {
	fake := &fakeChatModel{replies: []string{"the model rambled instead of answering"}}
	c := newTestClassifier(fake, 10)

	_, err := c.ClassifyURL(context.Background(), "https://example.com", "")
	assert.Error(t, err)
}

func TestClassifyLinksBatches(t *testing.T) {
	fake := &fakeChatModel{replies: []string{
		`{"classifications": [
			{"link": "https://example.com/a", "linkType": "post", "matchesWhatTheUserWants": true},
			{"link": "https://example.com/b", "linkType": "directory", "matchesWhatTheUserWants": false}
		]}`,
		`{"classifications": [
			{"link": "https://example.com/c", "linkType": "post", "matchesWhatTheUserWants": false}
		]}`,
	}}
	c := newTestClassifier(fake, 2)

	verdicts, err := c.ClassifyLinks(context.Background(), "engineering posts", []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, fake.calls, "three urls at batch size two means two calls")
	require.Len(t, verdicts, 3)
	assert.Equal(t, Classification{URL: "https://example.com/a", Kind: KindPost, Matches: true}, verdicts[0])
	assert.Equal(t, Classification{URL: "https://example.com/b", Kind: KindDirectory}, verdicts[1])
	assert.Equal(t, Classification{URL: "https://example.com/c", Kind: KindPost}, verdicts[2])
}

func TestClassifyLinksFailedBatchDegradesToUnknown(t *testing.T) {
	fake := &fakeChatModel{
		replies: []string{
			`{"classifications": [{"link": "https://example.com/a", "linkType": "post", "matchesWhatTheUserWants": true}]}`,
			"",
		},
		errs: []error{nil, errors.New("model offline")},
	}
	c := newTestClassifier(fake, 1)

	verdicts, err := c.ClassifyLinks(context.Background(), "", []string{
		"https://example.com/a",
		"https://example.com/b",
	})
	require.NoError(t, err)

	// The dead batch degrades to unknown; the good one survives.
	require.Len(t, verdicts, 2)
	assert.Equal(t, Classification{URL: "https://example.com/a", Kind: KindPost, Matches: true}, verdicts[0])
	assert.Equal(t, Classification{URL: "https://example.com/b", Kind: KindUnknown}, verdicts[1])
}

func TestClassifyLinksStopsOnContextCancel(t *testing.T) {
	c := newTestClassifier(&fakeChatModel{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdicts, err := c.ClassifyLinks(ctx, "", []string{"https://example.com/a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, verdicts)
}

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"directory", KindDirectory},
		{"Directory", KindDirectory},
		{" POST ", KindPost},
		{"post", KindPost},
		{"unknown", KindUnknown},
		{"article", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeKind(tt.in), "input %q", tt.in)
	}
}

func TestTrimJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, trimJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, trimJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, trimJSON("  {\"a\":1}  "))
}

func TestParseClassification(t *testing.T) {
	verdict, err := parseClassification(`{"linkType": "post", "matchesWhatTheUserWants": true}`)
	require.NoError(t, err)
	assert.Equal(t, KindPost, verdict.Kind)
	assert.True(t, verdict.Matches)

	verdict, err = parseClassification("```json\n{\"linkType\": \"WEIRD\", \"matchesWhatTheUserWants\": false}\n```")
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, verdict.Kind)
	assert.False(t, verdict.Matches)

	_, err = parseClassification("the model rambled instead of answering")
	assert.Error(t, err)
}

func TestAlignClassifications(t *testing.T) {
	urls := []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}
	verdicts := []Classification{
		{URL: "https://example.com/c", Kind: "post", Matches: true},
		{URL: "https://example.com/a", Kind: "DIRECTORY"},
		{URL: "https://example.com/not-asked", Kind: "post", Matches: true},
	}

	aligned := alignClassifications(urls, verdicts)
	require.Len(t, aligned, 3)

	assert.Equal(t, Classification{URL: urls[0], Kind: KindDirectory}, aligned[0])
	assert.Equal(t, Classification{URL: urls[1], Kind: KindUnknown}, aligned[1])
	assert.Equal(t, Classification{URL: urls[2], Kind: KindPost, Matches: true}, aligned[2])
}

func TestNewClassifierDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	c, err := NewClassifierWithConfig(ClassifierConfig{})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.config.Provider)
	assert.Equal(t, "gpt-4.1-nano", c.config.Model)
	assert.InDelta(t, 0.1, c.config.Temperature, 1e-9)
	assert.Equal(t, 10, c.config.BatchSize)
}

func TestNewClassifierOllama(t *testing.T) {
	c, err := NewClassifierWithConfig(ClassifierConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "mistral", c.config.Model)
	assert.Equal(t, "http://localhost:11434", c.config.BaseURL)
}
