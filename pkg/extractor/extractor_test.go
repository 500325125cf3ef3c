package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/siphon/internal/models"
)

type stubExtractor struct {
	name string
}

func (s stubExtractor) Name() string { return s.name }

func (s stubExtractor) Extract(ctx context.Context, pageURL, instructions string) ([]Unit, error) {
	return nil, nil
}

func TestRegistryHostDispatch(t *testing.T) {
	drive := stubExtractor{name: "gdrive"}
	fallback := stubExtractor{name: "blog"}

	r := NewRegistry(fallback)
	r.RegisterHost("drive.google.com", drive)

	tests := []struct {
		url  string
		want string
	}{
		{"https://drive.google.com/drive/folders/abc123", "gdrive"},
		{"https://content.drive.google.com/file", "gdrive"},
		{"https://docs.google.com/document/d/x", "blog"},
		{"https://example.com/blog", "blog"},
		{"https://notdrive.google.com.evil.com/x", "blog"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ext, err := r.For(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ext.Name())
		})
	}
}

func TestRegistryBadURL(t *testing.T) {
	r := NewRegistry(stubExtractor{name: "blog"})

	_, err := r.For("://missing-scheme")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestRegistryNoFallback(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.For("https://example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestMatchesHost(t *testing.T) {
	assert.True(t, matchesHost("drive.google.com", "drive.google.com"))
	assert.True(t, matchesHost("a.drive.google.com", "drive.google.com"))
	assert.False(t, matchesHost("google.com", "drive.google.com"))
	assert.False(t, matchesHost("drive.google.com.evil.com", "drive.google.com"))
}
