package index

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"pdf-rag/internal/models"
)

func entry(id string, vec ...float32) models.Entry {
	return models.Entry{Chunk: models.Chunk{ID: id, Content: "content " + id}, Embedding: vec}
}

func testMeta() models.IndexMeta {
	return models.IndexMeta{BuildID: "b1", EmbeddingModel: "titan"}
}

func TestSearch_OrdersBySimilarity(t *testing.T) {
	idx, err := Build(testMeta(), []models.Entry{
		entry("1", 1, 0),
		entry("2", 0, 1),
		entry("3", 1, 1),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	res, err := idx.Search([]float32{0.9, 0.1}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Chunk.ID != "1" || res[1].Chunk.ID != "3" {
		t.Fatalf("unexpected order: %s, %s", res[0].Chunk.ID, res[1].Chunk.ID)
	}
	if res[0].Score < res[1].Score {
		t.Fatalf("scores not non-increasing: %f < %f", res[0].Score, res[1].Score)
	}
}

func TestSearch_TopKBounds(t *testing.T) {
	idx, err := Build(testMeta(), []models.Entry{entry("1", 1, 0), entry("2", 0, 1)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	res, err := idx.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results when k > entries, got %d", len(res))
	}

	res, err = idx.Search([]float32{1, 0}, 0)
	if err != nil || len(res) != 0 {
		t.Fatalf("expected no results for k=0, got %d (%v)", len(res), err)
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	idx, err := Build(testMeta(), []models.Entry{
		entry("c", 2, 0),
		entry("a", 1, 0),
		entry("x", 0, 1),
		entry("b", 3, 0),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	for run := 0; run < 5; run++ {
		res, err := idx.Search([]float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		got := []string{res[0].Chunk.ID, res[1].Chunk.ID, res[2].Chunk.ID}
		if !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
			t.Fatalf("run %d: tie order = %v, want [c a b]", run, got)
		}
	}
}

func TestSearch_ScoresAreCosine(t *testing.T) {
	idx, err := Build(testMeta(), []models.Entry{entry("1", 3, 4)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := idx.Search([]float32{4, 3}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if math.Abs(res[0].Score-0.96) > 1e-6 {
		t.Fatalf("expected cosine 0.96, got %f", res[0].Score)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	idx, err := Build(testMeta(), []models.Entry{entry("1", 1, 0)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := idx.Search([]float32{1, 0, 0}, 1); !errors.Is(err, models.ErrIndexVersion) {
		t.Fatalf("expected ErrIndexVersion, got %v", err)
	}
	if _, err := idx.Search([]float32{0, 0}, 1); err == nil {
		t.Fatalf("expected error for zero query vector")
	}
}

func TestBuild_Validation(t *testing.T) {
	if _, err := Build(testMeta(), []models.Entry{entry("1", 1, 0), entry("2", 1, 0, 0)}); !errors.Is(err, models.ErrIndexVersion) {
		t.Errorf("expected ErrIndexVersion for mixed dimensions, got %v", err)
	}
	if _, err := Build(testMeta(), []models.Entry{entry("1", 0, 0)}); err == nil {
		t.Errorf("expected error for zero vector")
	}
	if _, err := Build(testMeta(), []models.Entry{entry("1")}); err == nil {
		t.Errorf("expected error for missing embedding")
	}

	idx, err := Build(testMeta(), []models.Entry{entry("1", 1, 2, 3)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if idx.Dimension() != 3 || idx.Meta().FormatVersion != models.IndexFormatVersion {
		t.Errorf("unexpected meta: %+v", idx.Meta())
	}
}

func TestBuild_CopiesEntries(t *testing.T) {
	entries := []models.Entry{entry("1", 1, 0)}
	idx, err := Build(testMeta(), entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	entries[0] = entry("changed", 0, 1)
	if idx.Entries()[0].Chunk.ID != "1" {
		t.Fatalf("index shares the caller's slice")
	}
}

func TestCheckCompatible(t *testing.T) {
	idx, err := Build(testMeta(), []models.Entry{entry("1", 1, 0)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := CheckCompatible(idx, "titan"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckCompatible(idx, "other-model"); !errors.Is(err, models.ErrIndexVersion) {
		t.Errorf("expected ErrIndexVersion for model mismatch, got %v", err)
	}

	meta := testMeta()
	meta.FormatVersion = models.IndexFormatVersion + 1
	old, err := Build(meta, []models.Entry{entry("1", 1, 0)})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := CheckCompatible(old, "titan"); !errors.Is(err, models.ErrIndexVersion) {
		t.Errorf("expected ErrIndexVersion for format mismatch, got %v", err)
	}
}

func TestEmbeddingEncodingRoundTrip(t *testing.T) {
	vec := []float32{0, -1.5, 3.1415927, math.MaxFloat32, math.SmallestNonzeroFloat32}
	got, err := DecodeEmbedding(EncodeEmbedding(vec))
	if err != nil {
		t.Fatalf("DecodeEmbedding failed: %v", err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Fatalf("round trip mismatch: %v != %v", got, vec)
	}
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}
