package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/index"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
)

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RAG ties the loader, chunker, embedder, index store and generator together
type RAG struct {
	cfg       *config.Config
	splitter  *parser.Splitter
	embedder  Embedder
	generator Generator
	store     index.Store
}

func NewRAG(cfg *config.Config, embedder Embedder, generator Generator, store index.Store) (*RAG, error) {
	splitter, err := parser.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return &RAG{
		cfg:       cfg,
		splitter:  splitter,
		embedder:  embedder,
		generator: generator,
		store:     store,
	}, nil
}

// NewStore returns the index store for the configured backend
func NewStore(cfg config.IndexConfig) (index.Store, error) {
	switch cfg.Backend {
	case config.BackendChromem:
		return chromemdb.NewStore(cfg), nil
	case config.BackendSQLite:
		return db.NewStore(cfg), nil
	default:
		return nil, fmt.Errorf("%w: invalid index backend %q", models.ErrConfig, cfg.Backend)
	}
}

// RebuildIndex loads every document in the data directory, embeds all chunks and
// replaces the persisted index. Nothing is written when loading or embedding fails.
func (r *RAG) RebuildIndex(ctx context.Context) (*models.BuildReport, error) {
	start := time.Now()

	docs, skipped, err := parser.LoadDirectory(ctx, r.cfg.DataDir, r.cfg.RAG.Extensions)
	if err != nil {
		return nil, err
	}
	chunks := r.splitter.Split(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text could be extracted from %s", models.ErrLoad, r.cfg.DataDir)
	}
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Int("skipped", len(skipped)).Msg("Split documents")

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
	}

	entries := make([]models.Entry, len(chunks))
	for i := range chunks {
		entries[i] = models.Entry{Chunk: chunks[i], Embedding: vectors[i]}
	}

	buildID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(models.IndexMeta{
		BuildID:        buildID,
		EmbeddingModel: r.cfg.EmbedLLM.Model,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if err := r.store.Persist(ctx, idx); err != nil {
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}

	report := &models.BuildReport{
		BuildID:   buildID,
		Documents: len(docs),
		Chunks:    idx.Len(),
		Skipped:   skipped,
		Duration:  time.Since(start),
	}
	log.Info().Str("build_id", buildID).Int("chunks", report.Chunks).Int("dimension", idx.Dimension()).Dur("took", report.Duration).Msg("Rebuilt vector index")
	return report, nil
}

// Answer retrieves the closest chunks for query and asks the model to answer from them
func (r *RAG) Answer(ctx context.Context, query string) (*models.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.ErrEmptyQuery
	}

	idx, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := index.CheckCompatible(idx, r.cfg.EmbedLLM.Model); err != nil {
		return nil, err
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := idx.Search(vec, r.cfg.RAG.TopK)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("results", len(results)).Str("build_id", idx.Meta().BuildID).Msg("Retrieved context")

	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = res.Chunk.Content
	}
	prompt, err := llmservice.FormatPrompt(strings.Join(parts, models.ContextSeparator), query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render prompt: %v", models.ErrGeneration, err)
	}

	content, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &models.Answer{
		Query:   query,
		Content: content,
		Sources: results,
	}, nil
}
