package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"pdf-rag/internal/models"
)

// Store persists an Index to local disk and loads it back
type Store interface {
	// Persist replaces whatever index is stored at the configured location
	Persist(ctx context.Context, idx *Index) error
	// Load returns models.ErrIndexNotFound when nothing has been persisted yet
	Load(ctx context.Context) (*Index, error)
}

// Index is an exact nearest-neighbour index over (chunk, vector) entries using cosine similarity
type Index struct {
	meta    models.IndexMeta
	entries []models.Entry
	mags    []float64
}

// Build validates the entries and precomputes vector magnitudes.
// All vectors must share one non-zero dimension and have non-zero magnitude.
func Build(meta models.IndexMeta, entries []models.Entry) (*Index, error) {
	dim := meta.Dimension
	if dim == 0 && len(entries) > 0 {
		dim = len(entries[0].Embedding)
	}
	mags := make([]float64, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("index: entry %s has no embedding", e.Chunk.ID)
		}
		if len(e.Embedding) != dim {
			return nil, fmt.Errorf("%w: entry %s has dimension %d, index has %d", models.ErrIndexVersion, e.Chunk.ID, len(e.Embedding), dim)
		}
		mags[i] = magnitude(e.Embedding)
		if mags[i] == 0 {
			return nil, fmt.Errorf("index: entry %s has a zero vector", e.Chunk.ID)
		}
	}
	meta.Dimension = dim
	if meta.FormatVersion == 0 {
		meta.FormatVersion = models.IndexFormatVersion
	}
	return &Index{
		meta:    meta,
		entries: append([]models.Entry(nil), entries...),
		mags:    mags,
	}, nil
}

func (i *Index) Meta() models.IndexMeta { return i.meta }

func (i *Index) Len() int { return len(i.entries) }

func (i *Index) Dimension() int { return i.meta.Dimension }

// Entries returns the entries in insertion order
func (i *Index) Entries() []models.Entry {
	return append([]models.Entry(nil), i.entries...)
}

// Search returns up to k entries ordered by non-increasing cosine similarity.
// Equal scores keep insertion order.
func (i *Index) Search(query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 || len(i.entries) == 0 {
		return nil, nil
	}
	if len(query) != i.meta.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d != index dimension %d", models.ErrIndexVersion, len(query), i.meta.Dimension)
	}
	qm := magnitude(query)
	if qm == 0 {
		return nil, fmt.Errorf("index: query vector has zero magnitude")
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(i.entries))
	for j, e := range i.entries {
		scores[j] = scored{idx: j, score: dot(query, e.Embedding) / (qm * i.mags[j])}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	k = min(k, len(scores))
	results := make([]models.SearchResult, k)
	for n := 0; n < k; n++ {
		results[n] = models.SearchResult{
			Chunk: i.entries[scores[n].idx].Chunk,
			Score: scores[n].score,
		}
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func magnitude(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// CheckCompatible fails with models.ErrIndexVersion when idx was written in another
// layout or with another embedding model than the one currently configured.
func CheckCompatible(idx *Index, embeddingModel string) error {
	meta := idx.Meta()
	if meta.FormatVersion != models.IndexFormatVersion {
		return fmt.Errorf("%w: index format %d, expected %d; rebuild the index", models.ErrIndexVersion, meta.FormatVersion, models.IndexFormatVersion)
	}
	if embeddingModel != "" && meta.EmbeddingModel != embeddingModel {
		return fmt.Errorf("%w: index built with %q, configured model is %q; rebuild the index", models.ErrIndexVersion, meta.EmbeddingModel, embeddingModel)
	}
	return nil
}
