package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/extractor"
	"github.com/xhad/siphon/pkg/metrics"
	"github.com/xhad/siphon/pkg/processor"
)

// Store is the persistence surface the pipeline drives.
type Store interface {
	GetRequest(ctx context.Context, id string) (*models.ExtractionRequest, error)
	SaveResult(ctx context.Context, result *models.ExtractionResult, chunks []models.Chunk) error
	MarkCompleted(ctx context.Context, id string) error
}

// Embedder turns chunk texts into vectors. Optional.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline runs one extraction job end to end: re-read the request,
// extract content units, chunk them, and persist everything.
type Pipeline struct {
	store    Store
	registry *extractor.Registry
	splitter processor.Processor
	embedder Embedder
}

// New wires a pipeline. embedder may be nil, in which case chunks are
// stored without vectors.
func New(store Store, registry *extractor.Registry, splitter processor.Processor, embedder Embedder) *Pipeline {
	return &Pipeline{
		store:    store,
		registry: registry,
		splitter: splitter,
		embedder: embedder,
	}
}

// Process handles a single queued job. The queue message is only a
// pointer: the database row is authoritative, so the request is
// re-read before any work happens.
func (p *Pipeline) Process(ctx context.Context, job models.JobMessage) error {
	req, err := p.store.GetRequest(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", job.ID, err)
	}
	if req.IsCompleted {
		slog.Info("Skipping already completed request", "id", req.ID)
		return nil
	}

	slog.Info("Processing extraction request", "id", req.ID, "url", req.URL)

	ext, err := p.registry.For(req.URL)
	if err != nil {
		return err
	}

	units, err := ext.Extract(ctx, req.URL, req.SpecialInstructions)
	if err != nil {
		return fmt.Errorf("extract %s: %w", req.URL, err)
	}
	metrics.UnitsExtracted.Add(float64(len(units)))

	for i, unit := range units {
		if err := p.saveUnit(ctx, req, i, unit); err != nil {
			return err
		}
	}

	if err := p.store.MarkCompleted(ctx, req.ID); err != nil {
		return fmt.Errorf("complete request %s: %w", req.ID, err)
	}

	slog.Info("Extraction request completed", "id", req.ID, "units", len(units))
	return nil
}

func (p *Pipeline) saveUnit(ctx context.Context, req *models.ExtractionRequest, index int, unit extractor.Unit) error {
	if unit.SourceURL == "" {
		unit.SourceURL = req.URL
	}
	if unit.Language == "" {
		unit.Language = detectLanguage(unit.Title, unit.Content)
	}

	result := &models.ExtractionResult{
		ID:                  resultID(req.ID, index, unit.Title),
		ExtractionRequestID: req.ID,
		Title:               unit.Title,
		Content:             unit.Content,
		ContentType:         unit.ContentType,
		SourceURL:           unit.SourceURL,
		Author:              unit.Author,
		Language:            unit.Language,
	}

	texts := p.splitter.Split(unit.Content)
	chunks := make([]models.Chunk, len(texts))
	for order, text := range texts {
		chunks[order] = models.Chunk{
			ID:                 chunkID(result.ID, order),
			ExtractionResultID: result.ID,
			Content:            text,
			OrderNumber:        order,
		}
	}
	p.embedChunks(ctx, texts, chunks)

	if err := p.store.SaveResult(ctx, result, chunks); err != nil {
		return fmt.Errorf("save result for %q: %w", unit.Title, err)
	}
	metrics.ChunksWritten.Add(float64(len(chunks)))
	return nil
}

// embedChunks fills in vectors when an embedder is configured. An
// embedding failure is not fatal: the chunks still land, just without
// vectors.
func (p *Pipeline) embedChunks(ctx context.Context, texts []string, chunks []models.Chunk) {
	if p.embedder == nil || len(texts) == 0 {
		return
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil || len(vectors) != len(chunks) {
		slog.Warn("Embedding failed, storing chunks without vectors", "error", err)
		return
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
}

// resultID derives a stable id so a redelivered job overwrites its own
// rows instead of duplicating them.
func resultID(requestID string, index int, title string) string {
	key := fmt.Sprintf("%s|%d|%s", requestID, index, title)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func chunkID(resultID string, order int) string {
	key := fmt.Sprintf("%s|%d", resultID, order)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// detectLanguage samples the title plus the first hundred words of
// content, enough for a confident read without scanning whole books.
func detectLanguage(title, content string) string {
	words := strings.Fields(content)
	if len(words) > 100 {
		words = words[:100]
	}

	sample := strings.TrimSpace(title + " " + strings.Join(words, " "))
	if sample == "" {
		return ""
	}

	info := whatlanggo.Detect(sample)
	return info.Lang.Iso6393()
}
