package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddingModel struct {
	vectors [][]float32
	err     error
	texts   []string
}

func (f *fakeEmbeddingModel) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func TestEmbedTexts(t *testing.T) {
	fake := &fakeEmbeddingModel{vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}}}
	e := &Embedder{model: fake}

	vectors, err := e.EmbedTexts(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	assert.Equal(t, []string{"first", "second"}, fake.texts)
}

func TestEmbedTextsEmpty(t *testing.T) {
	e := &Embedder{model: &fakeEmbeddingModel{}}

	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedTextsCountMismatch(t *testing.T) {
	fake := &fakeEmbeddingModel{vectors: [][]float32{{0.1}}}
	e := &Embedder{model: fake}

	_, err := e.EmbedTexts(context.Background(), []string{"first", "second"})
	assert.Error(t, err)
}

func TestEmbedTextsModelError(t *testing.T) {
	fake := &fakeEmbeddingModel{err: errors.New("model offline")}
	e := &Embedder{model: fake}

	_, err := e.EmbedTexts(context.Background(), []string{"first"})
	assert.Error(t, err)
}

func TestNewEmbedderDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	e, err := NewEmbedderWithConfig(EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.Model())

	e, err = NewEmbedderWithConfig(EmbedderConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text:latest", e.Model())
}
