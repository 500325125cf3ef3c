package processor

import (
	"strings"
	"unicode/utf8"
)

type ProcessorConfig struct {
	MaxChunkSize int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxChunkSize == 0 {
		config.MaxChunkSize = 2000
	}

	return Processor{
		config: config,
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

// Split cuts body into an ordered sequence of contiguous slices. Paragraph
// boundaries come first; any piece longer than MaxChunkSize is split again at
// the last newline, else the last space, else a hard cut on a rune start.
// Concatenating the returned slices in order reproduces body exactly, so the
// same body always chunks the same way.
func (p Processor) Split(body string) []string {
	if body == "" {
		return nil
	}

	var chunks []string
	for _, para := range splitParagraphs(body) {
		chunks = append(chunks, p.splitOversized(para)...)
	}
	return chunks
}

// splitParagraphs slices text after each run of two or more newlines. The
// separator stays attached to the preceding slice so nothing is lost.
func splitParagraphs(text string) []string {
	var parts []string
	start := 0

	for i := 0; i < len(text); {
		if text[i] == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			j := i
			for j < len(text) && text[j] == '\n' {
				j++
			}
			parts = append(parts, text[start:j])
			start = j
			i = j
			continue
		}
		i++
	}

	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

func (p Processor) splitOversized(piece string) []string {
	max := p.config.MaxChunkSize
	if len(piece) <= max {
		return []string{piece}
	}

	var parts []string
	rest := piece
	for len(rest) > max {
		cut := boundaryCut(rest, max)
		parts = append(parts, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// boundaryCut picks a cut position in (0, max]: after the last newline in the
// window, else after the last space, else at max backed up to a rune start.
func boundaryCut(text string, max int) int {
	window := text[:max]

	if i := strings.LastIndexByte(window, '\n'); i >= 0 {
		return i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i >= 0 {
		return i + 1
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		// max is smaller than a single rune; cut mid-rune rather than stall.
		cut = max
	}
	return cut
}
