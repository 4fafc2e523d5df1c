package models

import "errors"

var (
	// ErrLoad is returned when the input directory or its files cannot be read
	ErrLoad = errors.New("load error")
	// ErrEmbedding is returned when the embedding service fails or answers with garbage
	ErrEmbedding = errors.New("embedding error")
	// ErrIndexNotFound is returned when a query runs before any index was built
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexVersion is returned when a persisted index is incompatible with the running configuration
	ErrIndexVersion = errors.New("index version mismatch")
	ErrGeneration   = errors.New("generation error")
	ErrConfig       = errors.New("config error")
)

// ErrEmptyQuery is returned when a question is blank
var ErrEmptyQuery = errors.New("empty query")
