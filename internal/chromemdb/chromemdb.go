package chromemdb

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/index"
	"pdf-rag/internal/models"
)

// metadata keys of the stored documents
const (
	metaChunkID   = "chunk_id"
	metaSource    = "source"
	metaPage      = "page"
	metaChunk     = "chunk"
	metaEmbedding = "embedding"

	metaBuildID        = "build_id"
	metaEmbeddingModel = "embedding_model"
	metaDimension      = "dimension"
	metaFormatVersion  = "format_version"
	metaCreatedAt      = "created_at"

	metaDocID = "meta"
)

// Store persists the index as an exported chromem-go database file.
// Chunks live in the configured collection, the build metadata in a companion "<collection>_meta" collection.
type Store struct {
	dir           string
	collection    string
	compress      bool
	encryptionKey string
}

func NewStore(cfg config.IndexConfig) *Store {
	return &Store{
		dir:           cfg.Path,
		collection:    cfg.Collection,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
	}
}

// FilePath is where the exported database lives
func (s *Store) FilePath() string {
	return filepath.Join(s.dir, s.fileName())
}

func (s *Store) fileName() string {
	name := s.collection + ".chromem"
	if s.compress {
		name += ".gz"
	}
	return name
}

func (s *Store) metaCollection() string {
	return s.collection + "_meta"
}

// docID keeps the insertion order recoverable, chromem stores documents in a map
func docID(i int) string {
	return fmt.Sprintf("%08d", i)
}

// Persist writes idx to a temporary file next to the target and renames it into place,
// so a failed write leaves the previous index untouched.
func (s *Store) Persist(ctx context.Context, idx *index.Index) error {
	db := chromem.NewDB()

	// embeddings are always supplied, the embedding func is never called
	c, err := db.GetOrCreateCollection(s.collection, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create collection: %v", err)
	}

	entries := idx.Entries()
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:      docID(i),
			Content: e.Chunk.Content,
			Metadata: map[string]string{
				metaChunkID: e.Chunk.ID,
				metaSource:  e.Chunk.Source,
				metaPage:    strconv.Itoa(e.Chunk.PageNumber),
				metaChunk:   strconv.Itoa(e.Chunk.ChunkID),
				// chromem normalizes vectors on insert, keep the raw one for an exact round trip
				metaEmbedding: base64.StdEncoding.EncodeToString(index.EncodeEmbedding(e.Embedding)),
			},
			Embedding: e.Embedding,
		}
	}
	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add documents: %v", err)
		}
	}

	mc, err := db.GetOrCreateCollection(s.metaCollection(), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create meta collection: %v", err)
	}
	meta := idx.Meta()
	err = mc.AddDocument(ctx, chromem.Document{
		ID:      metaDocID,
		Content: meta.BuildID,
		Metadata: map[string]string{
			metaBuildID:        meta.BuildID,
			metaEmbeddingModel: meta.EmbeddingModel,
			metaDimension:      strconv.Itoa(meta.Dimension),
			metaFormatVersion:  strconv.Itoa(meta.FormatVersion),
			metaCreatedAt:      meta.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
		Embedding: []float32{1},
	})
	if err != nil {
		return fmt.Errorf("failed to add index metadata: %v", err)
	}

	if err := helper.CreateFolder(s.dir); err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, ".tmp-"+s.fileName())
	log.Debug().Str("file", s.FilePath()).Bool("compress", s.compress).Int("documents", len(docs)).Msg("Exporting chromem collection")
	if err := db.ExportToFile(tmp, s.compress, s.encryptionKey, s.collection, s.metaCollection()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export database: %v", err)
	}
	if err := os.Rename(tmp, s.FilePath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %v", s.FilePath(), err)
	}
	return nil
}

// Load imports the exported database and rebuilds the in-memory index in insertion order
func (s *Store) Load(ctx context.Context) (*index.Index, error) {
	path := s.FilePath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %v", path, err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, s.encryptionKey, s.collection, s.metaCollection()); err != nil {
		return nil, fmt.Errorf("failed to import database: %v", err)
	}

	mc := db.GetCollection(s.metaCollection(), nil)
	if mc == nil {
		return nil, fmt.Errorf("%w: %s has no index metadata", models.ErrIndexVersion, path)
	}
	metaDoc, err := mc.GetByID(ctx, metaDocID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no index metadata: %v", models.ErrIndexVersion, path, err)
	}
	meta, err := parseMeta(metaDoc.Metadata)
	if err != nil {
		return nil, err
	}
	if meta.FormatVersion != models.IndexFormatVersion {
		return nil, fmt.Errorf("%w: %s has format %d, expected %d", models.ErrIndexVersion, path, meta.FormatVersion, models.IndexFormatVersion)
	}

	var entries []models.Entry
	if c := db.GetCollection(s.collection, nil); c != nil {
		entries = make([]models.Entry, c.Count())
		for i := range entries {
			doc, err := c.GetByID(ctx, docID(i))
			if err != nil {
				return nil, fmt.Errorf("failed to read document %d: %v", i, err)
			}
			if entries[i], err = toEntry(doc); err != nil {
				return nil, err
			}
		}
	}

	log.Debug().Str("file", path).Int("entries", len(entries)).Str("build_id", meta.BuildID).Msg("Imported chromem collection")
	return index.Build(meta, entries)
}

func parseMeta(m map[string]string) (models.IndexMeta, error) {
	dim, err := strconv.Atoi(m[metaDimension])
	if err != nil {
		return models.IndexMeta{}, fmt.Errorf("%w: invalid dimension %q", models.ErrIndexVersion, m[metaDimension])
	}
	version, err := strconv.Atoi(m[metaFormatVersion])
	if err != nil {
		return models.IndexMeta{}, fmt.Errorf("%w: invalid format version %q", models.ErrIndexVersion, m[metaFormatVersion])
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, m[metaCreatedAt])
	return models.IndexMeta{
		BuildID:        m[metaBuildID],
		EmbeddingModel: m[metaEmbeddingModel],
		Dimension:      dim,
		FormatVersion:  version,
		CreatedAt:      createdAt,
	}, nil
}

func toEntry(doc chromem.Document) (models.Entry, error) {
	raw, err := base64.StdEncoding.DecodeString(doc.Metadata[metaEmbedding])
	if err != nil {
		return models.Entry{}, fmt.Errorf("document %s: invalid embedding: %v", doc.ID, err)
	}
	vec, err := index.DecodeEmbedding(raw)
	if err != nil {
		return models.Entry{}, fmt.Errorf("document %s: %v", doc.ID, err)
	}
	page, _ := strconv.Atoi(doc.Metadata[metaPage])
	chunk, _ := strconv.Atoi(doc.Metadata[metaChunk])
	return models.Entry{
		Chunk: models.Chunk{
			ID:         doc.Metadata[metaChunkID],
			Content:    doc.Content,
			Source:     doc.Metadata[metaSource],
			PageNumber: page,
			ChunkID:    chunk,
		},
		Embedding: vec,
	}, nil
}
