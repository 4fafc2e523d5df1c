package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/index"
	"pdf-rag/internal/models"
)

const (
	FileName = "index.sqlite"

	insertBatchSize = 500
)

type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	Seq           int64  `bun:"seq,pk"`
	ChunkID       string `bun:"chunk_id,notnull"`
	Content       string `bun:"content,notnull"`
	Source        string `bun:"source,notnull"`
	Page          int    `bun:"page,notnull"`
	ChunkNum      int    `bun:"chunk_num,notnull"`
	Embedding     []byte `bun:"embedding,notnull"`
}

type IndexMeta struct {
	bun.BaseModel  `bun:"table:index_meta,alias:m"`
	ID             int64     `bun:"id,pk"`
	BuildID        string    `bun:"build_id,notnull"`
	EmbeddingModel string    `bun:"embedding_model,notnull"`
	Dimension      int       `bun:"dimension,notnull"`
	FormatVersion  int       `bun:"format_version,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// Store persists the index into a single SQLite file, vectors as little-endian float32 blobs
type Store struct {
	dir   string
	debug bool
}

func NewStore(cfg config.IndexConfig) *Store {
	return &Store{dir: cfg.Path, debug: cfg.Debug}
}

func (s *Store) FilePath() string {
	return filepath.Join(s.dir, FileName)
}

// NewDB wraps sqldb with the sqlite dialect, logging every query when verbose is set
func NewDB(sqldb *sql.DB, verbose bool) *bun.DB {
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if verbose {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(path string, verbose bool) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v", path, err)
	}
	return NewDB(sqldb, verbose), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	for _, model := range []any{(*Chunk)(nil), (*IndexMeta)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Persist writes idx into a fresh database file and renames it over the previous one
func (s *Store) Persist(ctx context.Context, idx *index.Index) error {
	if err := helper.CreateFolder(s.dir); err != nil {
		return err
	}
	tmp := s.FilePath() + ".tmp"
	_ = os.Remove(tmp)

	if err := s.write(ctx, tmp, idx); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.FilePath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %v", s.FilePath(), err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, path string, idx *index.Index) error {
	db, err := ConnectDB(path, s.debug)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := InitDB(ctx, db); err != nil {
		return fmt.Errorf("failed to create tables: %v", err)
	}

	entries := idx.Entries()
	meta := idx.Meta()
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(entries); start += insertBatchSize {
			end := min(start+insertBatchSize, len(entries))
			rows := make([]Chunk, 0, end-start)
			for i := start; i < end; i++ {
				e := entries[i]
				rows = append(rows, Chunk{
					Seq:       int64(i),
					ChunkID:   e.Chunk.ID,
					Content:   e.Chunk.Content,
					Source:    e.Chunk.Source,
					Page:      e.Chunk.PageNumber,
					ChunkNum:  e.Chunk.ChunkID,
					Embedding: index.EncodeEmbedding(e.Embedding),
				})
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chunks: %v", err)
			}
		}

		row := &IndexMeta{
			ID:             1,
			BuildID:        meta.BuildID,
			EmbeddingModel: meta.EmbeddingModel,
			Dimension:      meta.Dimension,
			FormatVersion:  meta.FormatVersion,
			CreatedAt:      meta.CreatedAt.UTC(),
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert index metadata: %v", err)
		}
		log.Debug().Str("file", path).Int("chunks", len(entries)).Msg("Wrote sqlite index")
		return nil
	})
}

// Load reads the whole index back in insertion order
func (s *Store) Load(ctx context.Context) (*index.Index, error) {
	path := s.FilePath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %v", path, err)
	}

	db, err := ConnectDB(path, s.debug)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var meta IndexMeta
	if err := db.NewSelect().Model(&meta).Where("id = ?", 1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s has no index metadata", models.ErrIndexVersion, path)
		}
		return nil, fmt.Errorf("%w: failed to read index metadata from %s: %v", models.ErrIndexVersion, path, err)
	}
	if meta.FormatVersion != models.IndexFormatVersion {
		return nil, fmt.Errorf("%w: %s has format %d, expected %d", models.ErrIndexVersion, path, meta.FormatVersion, models.IndexFormatVersion)
	}

	var rows []Chunk
	if err := db.NewSelect().Model(&rows).Order("seq ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to read chunks from %s: %v", path, err)
	}

	entries := make([]models.Entry, len(rows))
	for i, r := range rows {
		vec, err := index.DecodeEmbedding(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %v", r.ChunkID, err)
		}
		entries[i] = models.Entry{
			Chunk: models.Chunk{
				ID:         r.ChunkID,
				Content:    r.Content,
				Source:     r.Source,
				PageNumber: r.Page,
				ChunkID:    r.ChunkNum,
			},
			Embedding: vec,
		}
	}

	return index.Build(models.IndexMeta{
		BuildID:        meta.BuildID,
		EmbeddingModel: meta.EmbeddingModel,
		Dimension:      meta.Dimension,
		FormatVersion:  meta.FormatVersion,
		CreatedAt:      meta.CreatedAt.UTC(),
	}, entries)
}
