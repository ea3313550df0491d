package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"docchat/types"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	title TEXT NOT NULL,
	source TEXT,
	source_path TEXT,
	chunks INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	chunk_id INTEGER NOT NULL,
	source TEXT NOT NULL,
	content TEXT NOT NULL,
	has_tables INTEGER NOT NULL DEFAULT 0,
	has_images INTEGER NOT NULL DEFAULT 0,
	content_types TEXT NOT NULL DEFAULT '',
	original_content TEXT,
	embedding BLOB
);

CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

const sqliteFile = "index.db"

// SQLiteStore keeps the index in <dir>/index.db. The directory and database
// are created on the first ReplaceCollection; until then reads behave as if
// nothing was ever persisted.
type SQLiteStore struct {
	dir string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(dir string) *SQLiteStore {
	return &SQLiteStore{dir: dir}
}

func (s *SQLiteStore) path() string { return filepath.Join(s.dir, sqliteFile) }

// open returns the database handle, creating the directory only when create
// is set. A missing directory without create wraps types.ErrNotFound.
func (s *SQLiteStore) open(create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if _, err := os.Stat(s.path()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if !create {
			return nil, types.NotFoundf("vector index %s", s.path())
		}
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", s.dir, err)
		}
	}

	db, err := sql.Open("sqlite", s.path())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	s.db = db
	return db, nil
}

func (s *SQLiteStore) ReplaceCollection(ctx context.Context, name string, doc types.Document, chunks []types.RetrievedChunk) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", name); err != nil {
		return fmt.Errorf("sqlite: delete old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", name); err != nil {
		return fmt.Errorf("sqlite: delete old documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO collections (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET created_at = excluded.created_at",
		name, time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite: create collection: %w", err)
	}
	if err := sqliteInsertChunks(ctx, tx, name, doc.ID, chunks); err != nil {
		return err
	}
	if err := sqliteUpsertDocument(ctx, tx, name, doc); err != nil {
		return fmt.Errorf("sqlite: save document: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) HasCollection(ctx context.Context, name string) (bool, error) {
	db, err := s.open(false)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM collections WHERE name = ?", name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, collection string, doc types.Document) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	return sqliteUpsertDocument(ctx, db, collection, doc)
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func sqliteUpsertDocument(ctx context.Context, db sqlExecer, collection string, doc types.Document) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, title, source, source_path, chunks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			title = excluded.title,
			source = excluded.source,
			source_path = excluded.source_path,
			chunks = excluded.chunks`,
		doc.ID.String(), collection, doc.Title, doc.Source, doc.SourcePath, doc.Chunks, doc.CreatedAt.UTC())
	return err
}

func (s *SQLiteStore) GetDocuments(ctx context.Context, collection string) ([]types.Document, error) {
	db, err := s.open(false)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT id, title, source, source_path, chunks, created_at FROM documents WHERE collection = ? ORDER BY created_at",
		collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var (
			doc types.Document
			id  string
		)
		if err := rows.Scan(&id, &doc.Title, &doc.Source, &doc.SourcePath, &doc.Chunks, &doc.CreatedAt); err != nil {
			return nil, err
		}
		if doc.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlite: bad document id %q: %w", id, err)
		}
		doc.Collection = collection
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) SaveChunks(ctx context.Context, collection string, docID uuid.UUID, chunks []types.RetrievedChunk) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := sqliteInsertChunks(ctx, tx, collection, docID, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func sqliteInsertChunks(ctx context.Context, db sqlExecer, collection string, docID uuid.UUID, chunks []types.RetrievedChunk) error {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO chunks (id, collection, doc_id, chunk_id, source, content, has_tables, has_images, content_types, original_content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		raw, err := json.Marshal(c.Raw)
		if err != nil {
			return fmt.Errorf("sqlite: marshal original content of chunk %d: %w", c.ChunkID, err)
		}
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := stmt.ExecContext(ctx,
			id.String(), collection, docID.String(), c.ChunkID, c.Source, c.Content,
			c.HasTables, c.HasImages, joinTypes(c.ContentTypes), string(raw), encodeVector(c.Embedding),
		); err != nil {
			return fmt.Errorf("sqlite: insert chunk %d: %w", c.ChunkID, err)
		}
	}
	return nil
}

// Search scores every chunk of the collection against queryVec and returns
// the closest ones by cosine distance.
func (s *SQLiteStore) Search(ctx context.Context, collection string, queryVec []float32, limit int) ([]types.RetrievedChunk, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}
	db, err := s.open(false)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, doc_id, chunk_id, source, content, has_tables, has_images, content_types, original_content, embedding
		FROM chunks
		WHERE collection = ? AND embedding IS NOT NULL
		ORDER BY chunk_id`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.RetrievedChunk
	for rows.Next() {
		var (
			chunk        types.RetrievedChunk
			id, docID    string
			contentTypes string
			raw          sql.NullString
			blob         []byte
		)
		if err := rows.Scan(&id, &docID, &chunk.ChunkID, &chunk.Source, &chunk.Content,
			&chunk.HasTables, &chunk.HasImages, &contentTypes, &raw, &blob); err != nil {
			return nil, err
		}
		chunk.ID, _ = uuid.Parse(id)
		chunk.DocID, _ = uuid.Parse(docID)
		chunk.ContentTypes = splitTypes(contentTypes)
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &chunk.Raw); err != nil {
				return nil, fmt.Errorf("sqlite: decode original content of chunk %d: %w", chunk.ChunkID, err)
			}
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: chunk %d: %w", chunk.ChunkID, err)
		}
		chunk.Distance = cosineDistance(queryVec, vec)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Distance < chunks[j].Distance })
	if limit >= 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	db, err := s.open(false)
	if errors.Is(err, types.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, "SELECT count(*) FROM chunks WHERE collection = ?", collection).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
