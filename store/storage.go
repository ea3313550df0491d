package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docchat/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorStorer persists documents and their embedded chunks grouped into
// named collections.
type VectorStorer interface {
	// ReplaceCollection drops any previous collection of the same name and
	// stores doc with its already embedded chunks in one transaction. On
	// error the previous collection is left untouched.
	ReplaceCollection(ctx context.Context, name string, doc types.Document, chunks []types.RetrievedChunk) error
	HasCollection(ctx context.Context, name string) (bool, error)
	SaveDocument(ctx context.Context, collection string, doc types.Document) error
	GetDocuments(ctx context.Context, collection string) ([]types.Document, error)
	SaveChunks(ctx context.Context, collection string, docID uuid.UUID, chunks []types.RetrievedChunk) error
	Search(ctx context.Context, collection string, queryVec []float32, limit int) ([]types.RetrievedChunk, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// pgExecer is satisfied by both the pool and a transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

func NewPostgresStore(ctx context.Context, connStr string, dimensions int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:       pool,
		dimensions: dimensions,
	}, nil
}

func (p *PostgresStore) ReplaceCollection(ctx context.Context, name string, doc types.Document, chunks []types.RetrievedChunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE collection = $1", name); err != nil {
		return fmt.Errorf("error deleting old chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE collection = $1", name); err != nil {
		return fmt.Errorf("error deleting old documents: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO collections (name, created_at) VALUES ($1, now()) ON CONFLICT (name) DO UPDATE SET created_at = now()",
		name); err != nil {
		return err
	}
	if err := insertChunks(ctx, tx, name, doc.ID, chunks); err != nil {
		return fmt.Errorf("error inserting chunks: %w", err)
	}
	if err := upsertDocument(ctx, tx, name, doc); err != nil {
		return fmt.Errorf("error saving document: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) HasCollection(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM collections WHERE name = $1)", name).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) SaveDocument(ctx context.Context, collection string, doc types.Document) error {
	return upsertDocument(ctx, p.pool, collection, doc)
}

func upsertDocument(ctx context.Context, db pgExecer, collection string, doc types.Document) error {
	query := `INSERT INTO documents (id, collection, title, source, source_path, chunks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			collection = EXCLUDED.collection,
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			chunks = EXCLUDED.chunks
			`
	_, err := db.Exec(
		ctx,
		query,
		doc.ID,
		collection,
		doc.Title,
		doc.Source,
		doc.SourcePath,
		doc.Chunks,
		doc.CreatedAt,
	)

	return err
}

func (p *PostgresStore) GetDocuments(ctx context.Context, collection string) ([]types.Document, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, title, source, source_path, chunks, created_at FROM documents WHERE collection = $1 ORDER BY created_at",
		collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc := types.Document{Collection: collection}
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Source, &doc.SourcePath, &doc.Chunks, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) SaveChunks(ctx context.Context, collection string, docID uuid.UUID, chunks []types.RetrievedChunk) error {
	return insertChunks(ctx, p.pool, collection, docID, chunks)
}

func insertChunks(ctx context.Context, db pgExecer, collection string, docID uuid.UUID, chunks []types.RetrievedChunk) error {
	query := `
    INSERT INTO chunks (id, collection, doc_id, chunk_id, source, content, has_tables, has_images, content_types, original_content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	batch := &pgx.Batch{}
	for _, c := range chunks {
		raw, err := json.Marshal(c.Raw)
		if err != nil {
			return fmt.Errorf("marshal original content of chunk %d: %w", c.ChunkID, err)
		}
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(query,
			id, collection, docID, c.ChunkID, c.Source, c.Content,
			c.HasTables, c.HasImages, joinTypes(c.ContentTypes), raw, pgvector.NewVector(c.Embedding),
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return br.Close()
}

func (p *PostgresStore) Search(ctx context.Context, collection string, queryVec []float32, limit int) ([]types.RetrievedChunk, error) {
	if len(queryVec) == 0 {
		return nil, errors.New("empty query vector")
	}

	query := `
		SELECT c.id, c.doc_id, c.chunk_id, c.source, c.content, c.has_tables, c.has_images,
		       c.content_types, c.original_content, c.embedding <=> $2 AS distance
		FROM chunks c
		WHERE c.collection = $1 AND c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $2
		LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, collection, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []types.RetrievedChunk
	for rows.Next() {
		var (
			chunk        types.RetrievedChunk
			contentTypes string
			raw          []byte
		)
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.ChunkID,
			&chunk.Source,
			&chunk.Content,
			&chunk.HasTables,
			&chunk.HasImages,
			&contentTypes,
			&raw,
			&chunk.Distance); err != nil {
			return nil, err
		}
		chunk.ContentTypes = splitTypes(contentTypes)
		if err := json.Unmarshal(raw, &chunk.Raw); err != nil {
			return nil, fmt.Errorf("decode original content of chunk %d: %w", chunk.ChunkID, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM chunks WHERE collection = $1", collection).Scan(&n)
	return n, err
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		collection TEXT NOT NULL,
		title TEXT NOT NULL,
		source TEXT,
		source_path TEXT,
		chunks INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		collection TEXT NOT NULL,
		doc_id UUID NOT NULL,
		chunk_id INT NOT NULL,
		source TEXT NOT NULL,
		content TEXT NOT NULL,
		has_tables BOOLEAN NOT NULL DEFAULT false,
		has_images BOOLEAN NOT NULL DEFAULT false,
		content_types TEXT NOT NULL DEFAULT '',
		original_content JSONB,
		embedding vector(%d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`, p.dimensions)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func joinTypes(ts []types.ContentType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTypes(s string) []types.ContentType {
	if s == "" {
		return []types.ContentType{}
	}
	parts := strings.Split(s, ",")
	out := make([]types.ContentType, len(parts))
	for i, p := range parts {
		out[i] = types.ContentType(p)
	}
	return out
}
