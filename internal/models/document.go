package models

import "time"

// Document is the extracted text of one page of a source file
type Document struct {
	Content string
	Source  string
	Page    int
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	ID         string
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
}

// Entry pairs a chunk with its embedding vector
type Entry struct {
	Chunk     Chunk
	Embedding []float32
}

// IndexMeta describes how a persisted index was built
type IndexMeta struct {
	BuildID        string
	EmbeddingModel string
	Dimension      int
	FormatVersion  int
	CreatedAt      time.Time
}

type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Answer is the generated response together with the chunks used as context
type Answer struct {
	Query   string
	Content string
	Sources []SearchResult
}

// BuildReport summarises a rebuild of the vector index
type BuildReport struct {
	BuildID   string
	Documents int
	Chunks    int
	Skipped   []string
	Duration  time.Duration
}
