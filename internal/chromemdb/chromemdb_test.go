package chromemdb

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"pdf-rag/internal/config"
	"pdf-rag/internal/index"
	"pdf-rag/internal/models"
)

func testIndex(t *testing.T, n int) *index.Index {
	t.Helper()
	entries := make([]models.Entry, n)
	for i := range entries {
		entries[i] = models.Entry{
			Chunk: models.Chunk{
				ID:         "doc.pdf#p1#c" + string(rune('a'+i)),
				Content:    "chunk text " + string(rune('a'+i)),
				Source:     "data/doc.pdf",
				PageNumber: 1 + i/2,
				ChunkID:    i + 1,
			},
			Embedding: []float32{float32(i + 1), 0.5, -0.25},
		}
	}
	idx, err := index.Build(models.IndexMeta{
		BuildID:        "build-1",
		EmbeddingModel: "amazon.titan-embed-text-v1",
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return idx
}

func testStore(t *testing.T, key string, compress bool) *Store {
	return NewStore(config.IndexConfig{
		Path:          t.TempDir(),
		Collection:    "documents",
		Compress:      compress,
		EncryptionKey: key,
	})
}

func TestPersistLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		compress bool
	}{
		{"plain", "", false},
		{"compressed", "", true},
		{"encrypted", "0123456789abcdef0123456789abcdef", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := testStore(t, tt.key, tt.compress)
			idx := testIndex(t, 5)

			if err := store.Persist(ctx, idx); err != nil {
				t.Fatalf("Persist failed: %v", err)
			}
			loaded, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if !reflect.DeepEqual(loaded.Entries(), idx.Entries()) {
				t.Errorf("entries differ after round trip:\n got %+v\nwant %+v", loaded.Entries(), idx.Entries())
			}
			if !reflect.DeepEqual(loaded.Meta(), idx.Meta()) {
				t.Errorf("meta differs after round trip: got %+v want %+v", loaded.Meta(), idx.Meta())
			}
		})
	}
}

func TestPersistReplacesPreviousIndex(t *testing.T) {
	ctx := context.Background()
	store := testStore(t, "", false)

	if err := store.Persist(ctx, testIndex(t, 6)); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if err := store.Persist(ctx, testIndex(t, 2)); err != nil {
		t.Fatalf("second Persist failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries after replace, got %d", loaded.Len())
	}

	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the index file to remain, got %d files", len(entries))
	}
}

func TestLoadMissingIndex(t *testing.T) {
	store := testStore(t, "", false)
	if _, err := store.Load(context.Background()); !errors.Is(err, models.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestLoadEmptyIndex(t *testing.T) {
	ctx := context.Background()
	store := testStore(t, "", false)
	empty, err := index.Build(models.IndexMeta{EmbeddingModel: "m", Dimension: 3}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := store.Persist(ctx, empty); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 0 || loaded.Dimension() != 3 {
		t.Fatalf("unexpected empty index: len=%d dim=%d", loaded.Len(), loaded.Dimension())
	}
}
