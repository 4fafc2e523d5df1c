package parser

import (
	"fmt"
	"path/filepath"

	"pdf-rag/internal/models"
)

// Splitter cuts page text into fixed-size character windows that overlap by a fixed amount
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be greater than 0, got %d", models.ErrConfig, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrConfig, chunkSize, chunkOverlap)
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// SplitText returns the windows [0, size), [step, step+size), ... with step = size - overlap.
// The window that reaches the end of the text is the last one and may be shorter.
// Lengths are counted in runes so multi-byte characters are never cut.
func (s *Splitter) SplitText(content string) []string {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	step := s.chunkSize - s.chunkOverlap
	var chunks []string
	for start := 0; ; start += step {
		end := min(start+s.chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Split chunks every document independently, so no chunk spans two pages
func (s *Splitter) Split(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		for i, content := range s.SplitText(doc.Content) {
			chunks = append(chunks, models.Chunk{
				ID:         fmt.Sprintf("%s#p%d#c%d", filepath.Base(doc.Source), doc.Page, i+1),
				Content:    content,
				Source:     doc.Source,
				PageNumber: doc.Page,
				ChunkID:    i + 1,
			})
		}
	}
	return chunks
}
