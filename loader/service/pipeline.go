package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docchat/loader/internal"
	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Parser turns a document file into typed elements. A missing file wraps
// types.ErrNotFound.
type Parser interface {
	Parse(ctx context.Context, path string) ([]types.Element, error)
}

type ParserConfig = internal.ParserConfig

// NewPDFParser returns the docling-backed PDF parser.
func NewPDFParser(cfg ParserConfig, logger *zap.Logger) Parser {
	return internal.NewPDFParser(cfg, logger)
}

// Pipeline runs parse, chunk, classify and summarize, then index.
type Pipeline struct {
	parser     Parser
	chunker    *Chunker
	summarizer *Summarizer
	storer     store.VectorStorer
	embedder   model.Embedder
	delay      time.Duration
	logger     *zap.Logger
}

type PipelineConfig struct {
	Chunker ChunkerConfig
	// SummaryDelay separates consecutive summarization calls.
	SummaryDelay time.Duration
}

func NewPipeline(cfg PipelineConfig, parser Parser, gen model.Generator, storer store.VectorStorer, embedder model.Embedder, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		parser:     parser,
		chunker:    NewChunker(cfg.Chunker),
		summarizer: NewSummarizer(gen),
		storer:     storer,
		embedder:   embedder,
		delay:      cfg.SummaryDelay,
		logger:     logger.Named("ingestion"),
	}
}

// Process turns blocks into indexable chunks numbered from 1. Blocks with
// tables or images are indexed by an AI summary, falling back to their raw
// text when summarization fails; text-only blocks keep their raw text.
func (p *Pipeline) Process(ctx context.Context, blocks []types.Block, source string) []types.RetrievedChunk {
	start := time.Now()
	total := len(blocks)
	p.logger.Info("processing chunks", zap.String("source", source), zap.Int("chunks", total))

	chunks := make([]types.RetrievedChunk, 0, total)
	for i, block := range blocks {
		chunkID := i + 1
		parts := Classify(block)

		content := parts.Text
		if parts.HasTables() || parts.HasImages() {
			p.logger.Info("summarizing multimodal chunk",
				zap.Int("chunk", chunkID), zap.Int("total", total),
				zap.Int("tables", len(parts.Tables)), zap.Int("images", len(parts.Images)))

			summary, err := p.summarizer.Summarize(ctx, parts)
			if err != nil {
				p.logger.Warn("AI summary failed, using raw text", zap.Int("chunk", chunkID), zap.Error(err))
			} else if summary != "" {
				content = summary
			}
			p.wait(ctx)
		}

		chunks = append(chunks, types.RetrievedChunk{
			ID:           uuid.New(),
			Content:      content,
			Source:       source,
			ChunkID:      chunkID,
			HasTables:    parts.HasTables(),
			HasImages:    parts.HasImages(),
			ContentTypes: parts.Types,
			Raw: types.RawPayload{
				RawText:      parts.Text,
				TablesHTML:   parts.Tables,
				ImagesBase64: parts.Images,
			},
		})
	}

	p.logger.Info("processed chunks", zap.Int("chunks", len(chunks)), zap.Duration("took", time.Since(start)))
	return chunks
}

// Run ingests one PDF into a fresh collection.
func (p *Pipeline) Run(ctx context.Context, pdfPath, collection string) (*store.Index, types.Document, error) {
	doc, chunks, err := p.prepare(ctx, pdfPath)
	if err != nil {
		return nil, types.Document{}, err
	}

	idx, err := store.Create(ctx, p.storer, p.embedder, collection, doc, chunks, p.logger)
	if err != nil {
		return nil, types.Document{}, err
	}
	doc.Collection = collection
	doc.Chunks = len(chunks)
	p.logger.Info("ingestion pipeline completed", zap.String("source", doc.Source), zap.Int("chunks", doc.Chunks))
	return idx, doc, nil
}

// RunDirectory ingests every PDF of dir, in name order, into a fresh
// collection. Files that fail to parse are logged and skipped.
func (p *Pipeline) RunDirectory(ctx context.Context, dir, collection string) (*store.Index, []types.Document, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil, types.NotFoundf("directory %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && isPDF(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no PDFs found in %s", dir)
	}
	p.logger.Info("found PDFs", zap.String("dir", dir), zap.Int("files", len(paths)))

	var (
		idx  *store.Index
		docs []types.Document
	)
	for _, path := range paths {
		doc, chunks, err := p.prepare(ctx, path)
		if err != nil {
			p.logger.Error("failed to parse, skipping", zap.String("file", filepath.Base(path)), zap.Error(err))
			continue
		}

		if idx == nil {
			idx, err = store.Create(ctx, p.storer, p.embedder, collection, doc, chunks, p.logger)
		} else {
			err = idx.Add(ctx, doc, chunks)
		}
		if err != nil {
			return nil, nil, err
		}
		doc.Collection = collection
		doc.Chunks = len(chunks)
		docs = append(docs, doc)
	}

	if idx == nil {
		return nil, nil, fmt.Errorf("no PDFs in %s could be parsed", dir)
	}
	p.logger.Info("directory ingestion completed", zap.Int("documents", len(docs)))
	return idx, docs, nil
}

// AddDocument appends one PDF to an existing index.
func (p *Pipeline) AddDocument(ctx context.Context, idx *store.Index, pdfPath string) (types.Document, error) {
	doc, chunks, err := p.prepare(ctx, pdfPath)
	if err != nil {
		return types.Document{}, err
	}
	if err := idx.Add(ctx, doc, chunks); err != nil {
		return types.Document{}, err
	}
	doc.Collection = idx.Collection()
	doc.Chunks = len(chunks)
	return doc, nil
}

// Ingest appends pdfPath to collection, creating the collection when it
// does not exist yet.
func (p *Pipeline) Ingest(ctx context.Context, pdfPath, collection string) (types.Document, error) {
	idx, err := store.Load(ctx, p.storer, p.embedder, collection, p.logger)
	if errors.Is(err, types.ErrNotFound) {
		_, doc, err := p.Run(ctx, pdfPath, collection)
		return doc, err
	}
	if err != nil {
		return types.Document{}, err
	}
	return p.AddDocument(ctx, idx, pdfPath)
}

func (p *Pipeline) prepare(ctx context.Context, path string) (types.Document, []types.RetrievedChunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Document{}, nil, types.NotFoundf("PDF %s", path)
		}
		return types.Document{}, nil, err
	}

	elements, err := p.parser.Parse(ctx, path)
	if err != nil {
		return types.Document{}, nil, err
	}
	blocks := p.chunker.Chunk(elements)
	p.logger.Info("chunked elements", zap.Int("elements", len(elements)), zap.Int("chunks", len(blocks)))

	doc := types.Document{
		ID:         documentID(path),
		Title:      generateTitle(path),
		Source:     filepath.Base(path),
		SourcePath: path,
		CreatedAt:  info.ModTime(),
	}
	return doc, p.Process(ctx, blocks, doc.Source), nil
}

func (p *Pipeline) wait(ctx context.Context) {
	if p.delay <= 0 {
		return
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// documentID is stable for a given path so re-ingesting a file keeps its id.
func documentID(path string) uuid.UUID {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(path))
}

func generateTitle(filePath string) string {
	fileName := filepath.Base(filePath)
	if strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		fileName = fileName[:len(fileName)-4]
	}
	fileName = strings.ReplaceAll(fileName, "_", " ")
	fileName = strings.ReplaceAll(fileName, "-", " ")
	return fileName
}
