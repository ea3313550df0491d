package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeParser returns the elements registered for a file name.
type fakeParser map[string][]types.Element

func (p fakeParser) Parse(_ context.Context, path string) ([]types.Element, error) {
	elements, ok := p[filepath.Base(path)]
	if !ok {
		return nil, errors.New("unreadable pdf")
	}
	return elements, nil
}

// scriptedGenerator answers calls in order and records the prompts.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   [][]model.Message
}

func (g *scriptedGenerator) Invoke(_ context.Context, messages []model.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.calls)
	g.calls = append(g.calls, messages)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "summary", nil
}

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text)), float32(strings.Count(text, " "))}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func newTestPipeline(t *testing.T, parser Parser, gen model.Generator) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	s := store.NewSQLiteStore(filepath.Join(t.TempDir(), "index"))
	t.Cleanup(func() { s.Close() })
	cfg := PipelineConfig{Chunker: ChunkerConfig{MaxCharacters: 200, NewAfterNChars: 150, Overlap: 10}}
	return NewPipeline(cfg, parser, gen, s, lengthEmbedder{}, zap.NewNop()), s
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func TestPipelineProcess(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"  revenue table for 2023  "},
		errs:    []error{nil, errors.New("model unavailable")},
	}
	p, _ := newTestPipeline(t, fakeParser{}, gen)

	blocks := []types.Block{
		{Elements: []types.Element{{Kind: types.ElementText, Text: "plain text"}}},
		{Elements: []types.Element{{Kind: types.ElementTable, Text: "year revenue", TableHTML: "<table>r</table>"}}},
		{Elements: []types.Element{
			{Kind: types.ElementText, Text: "caption"},
			{Kind: types.ElementImage, Image: "AAAA", ImageMIME: "image/png"},
		}},
	}

	chunks := p.Process(context.Background(), blocks, "report.pdf")
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, i+1, c.ChunkID)
		assert.Equal(t, "report.pdf", c.Source)
	}

	assert.Equal(t, "plain text", chunks[0].Content)
	assert.False(t, chunks[0].HasTables)

	assert.Equal(t, "revenue table for 2023", chunks[1].Content)
	assert.True(t, chunks[1].HasTables)
	assert.Equal(t, []types.ContentType{types.ContentTable}, chunks[1].ContentTypes)
	assert.Equal(t, []string{"<table>r</table>"}, chunks[1].Raw.TablesHTML)

	// Summary failed: raw text is indexed instead.
	assert.Equal(t, "caption", chunks[2].Content)
	assert.True(t, chunks[2].HasImages)
	assert.Equal(t, []string{"AAAA"}, chunks[2].Raw.ImagesBase64)

	require.Len(t, gen.calls, 2)
	assert.Contains(t, gen.calls[0][0].Content, "TEXT:\n(no text)")
	assert.Contains(t, gen.calls[0][0].Content, "TABLES:\nTable 1:\n<table>r</table>")
	require.Len(t, gen.calls[1][0].Images, 1)
	assert.Equal(t, "image/png", gen.calls[1][0].Images[0].MIMEType)
}

func TestPipelineProcessCancelledDelay(t *testing.T) {
	p, _ := newTestPipeline(t, fakeParser{}, &scriptedGenerator{})
	p.delay = 1 << 40

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks := p.Process(ctx, []types.Block{
		{Elements: []types.Element{{Kind: types.ElementTable, TableHTML: "<table/>"}}},
	}, "a.pdf")
	require.Len(t, chunks, 1)
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	path := writePDF(t, dir, "user_guide-v2.pdf")
	parser := fakeParser{"user_guide-v2.pdf": {
		{Kind: types.ElementTitle, Text: "Setup"},
		{Kind: types.ElementText, Text: "Install the agent before first use."},
		{Kind: types.ElementTitle, Text: "Usage"},
		{Kind: types.ElementText, Text: "Run the agent with a config file."},
	}}
	p, s := newTestPipeline(t, parser, &scriptedGenerator{})

	idx, doc, err := p.Run(context.Background(), path, "documents")
	require.NoError(t, err)

	assert.Equal(t, "user guide v2", doc.Title)
	assert.Equal(t, "user_guide-v2.pdf", doc.Source)
	assert.Equal(t, "documents", doc.Collection)
	assert.Equal(t, 2, doc.Chunks)
	assert.Equal(t, documentID(path), doc.ID)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ok, err := s.HasCollection(context.Background(), "documents")
	require.NoError(t, err)
	assert.True(t, ok)

	results, err := idx.Query(context.Background(), "Setup\nInstall the agent before first use.", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ChunkID)
}

func TestPipelineRunFailureKeepsPreviousIndex(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf")
	b := writePDF(t, dir, "b.pdf")
	parser := fakeParser{
		"a.pdf": {{Kind: types.ElementText, Text: "alpha"}, {Kind: types.ElementTitle, Text: "Beta"}},
		"b.pdf": {{Kind: types.ElementText, Text: "replacement"}},
	}
	p, _ := newTestPipeline(t, parser, &scriptedGenerator{})
	ctx := context.Background()

	idxA, _, err := p.Run(ctx, a, "documents")
	require.NoError(t, err)

	p.embedder = failingEmbedder{}
	_, _, err = p.Run(ctx, b, "documents")
	var extErr *types.ExternalCallError
	require.ErrorAs(t, err, &extErr)

	n, err := idxA.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := idxA.Query(ctx, "alpha", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "a.pdf", r.Source)
	}
}

func TestPipelineRunMissingFile(t *testing.T) {
	p, _ := newTestPipeline(t, fakeParser{}, &scriptedGenerator{})

	_, _, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), "documents")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPipelineRunDirectory(t *testing.T) {
	dir := t.TempDir()
	writePDF(t, dir, "a.pdf")
	writePDF(t, dir, "b.pdf")
	writePDF(t, dir, "C.PDF")
	writePDF(t, dir, "broken.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	parser := fakeParser{
		"a.pdf": {{Kind: types.ElementText, Text: "first document"}},
		"b.pdf": {{Kind: types.ElementText, Text: "second document"}, {Kind: types.ElementTitle, Text: "More"}},
		"C.PDF": {{Kind: types.ElementText, Text: "upper-case extension"}},
	}
	p, _ := newTestPipeline(t, parser, &scriptedGenerator{})

	idx, docs, err := p.RunDirectory(context.Background(), dir, "documents")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "C.PDF", docs[0].Source)
	assert.Equal(t, "a.pdf", docs[1].Source)
	assert.Equal(t, "b.pdf", docs[2].Source)
	assert.Equal(t, 2, docs[2].Chunks)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	stored, err := idx.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestPipelineRunDirectoryErrors(t *testing.T) {
	p, _ := newTestPipeline(t, fakeParser{}, &scriptedGenerator{})
	ctx := context.Background()

	_, _, err := p.RunDirectory(ctx, filepath.Join(t.TempDir(), "missing"), "documents")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, _, err = p.RunDirectory(ctx, t.TempDir(), "documents")
	assert.ErrorContains(t, err, "no PDFs found")

	dir := t.TempDir()
	writePDF(t, dir, "broken.pdf")
	_, _, err = p.RunDirectory(ctx, dir, "documents")
	assert.ErrorContains(t, err, "could be parsed")
}

func TestPipelineIngestCreatesThenAppends(t *testing.T) {
	dir := t.TempDir()
	first := writePDF(t, dir, "first.pdf")
	second := writePDF(t, dir, "second.pdf")
	parser := fakeParser{
		"first.pdf":  {{Kind: types.ElementText, Text: "one"}},
		"second.pdf": {{Kind: types.ElementText, Text: "two"}},
	}
	p, s := newTestPipeline(t, parser, &scriptedGenerator{})
	ctx := context.Background()

	doc, err := p.Ingest(ctx, first, "inbox")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Chunks)

	doc, err = p.Ingest(ctx, second, "inbox")
	require.NoError(t, err)
	assert.Equal(t, "inbox", doc.Collection)

	n, err := s.Count(ctx, "inbox")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGenerateTitle(t *testing.T) {
	tests := map[string]string{
		"docs/annual_report-2023.pdf": "annual report 2023",
		"Manual.PDF":                  "Manual",
		"notes":                       "notes",
	}
	for in, want := range tests {
		assert.Equal(t, want, generateTitle(in), in)
	}
}
