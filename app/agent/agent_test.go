package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docchat/generation"
	"docchat/memory"
	"docchat/model"
	"docchat/router"
	"docchat/store"
	"docchat/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// roleGenerator answers router, extractor and answer calls separately.
type roleGenerator struct {
	mu        sync.Mutex
	route     string
	answer    string
	memory    string
	answerErr error
	prompts   []string
}

func (g *roleGenerator) Invoke(_ context.Context, messages []model.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	system := messages[0].Content
	g.prompts = append(g.prompts, system)
	switch {
	case strings.Contains(system, "query classifier"):
		return g.route, nil
	case strings.Contains(system, "memory curator"):
		return g.memory, nil
	default:
		if g.answerErr != nil {
			return "", g.answerErr
		}
		return g.answer, nil
	}
}

type staticIndex []types.RetrievedChunk

func (s staticIndex) Query(_ context.Context, _ string, k int) ([]types.RetrievedChunk, error) {
	if k < len(s) {
		return s[:k], nil
	}
	return s, nil
}

type failingIndex struct{}

func (failingIndex) Query(context.Context, string, int) ([]types.RetrievedChunk, error) {
	return nil, types.NewExternalCallError("query index", errors.New("connection refused"))
}

type stubLoader struct {
	err        error
	collection string
}

func (l *stubLoader) Run(_ context.Context, pdfPath, collection string) (*store.Index, types.Document, error) {
	l.collection = collection
	if l.err != nil {
		return nil, types.Document{}, l.err
	}
	return &store.Index{}, types.Document{Source: filepath.Base(pdfPath), Collection: collection, Chunks: 4}, nil
}

func newTestAgent(t *testing.T, gen *roleGenerator, loader Loader) (*Agent, *memory.FileStore) {
	t.Helper()
	dir := t.TempDir()
	user := memory.NewFileStore(filepath.Join(dir, "USER_MEMORY.md"), "User")
	company := memory.NewFileStore(filepath.Join(dir, "COMPANY_MEMORY.md"), "Company")
	log := zap.NewNop()

	a := New(Config{Collection: "documents", TopK: 2},
		router.New(gen, log),
		generation.NewDispatcher(gen, user, company, log),
		memory.NewManager(memory.NewExtractor(gen, log), user, company, memory.DefaultConfidenceThreshold, log),
		loader, log)
	return a, user
}

const noMemory = `{"should_save": false, "user_facts": [], "company_facts": [], "confidence": 0}`

func TestHandleTurnDocumentSearch(t *testing.T) {
	gen := &roleGenerator{
		route:  "document_search",
		answer: "The warranty lasts two years [Source: p.pdf, Chunk 3].",
		memory: noMemory,
	}
	a, _ := newTestAgent(t, gen, &stubLoader{})
	a.SetIndex(staticIndex{
		{Content: "Warranty: two years from purchase.", Source: "p.pdf", ChunkID: 3},
		{Content: "Returns within 30 days.", Source: "p.pdf", ChunkID: 4},
		{Content: "never retrieved", Source: "p.pdf", ChunkID: 9},
	}, types.Document{Source: "p.pdf"})

	res, err := a.HandleTurn(context.Background(), "How long is the warranty?")
	require.NoError(t, err)

	assert.Equal(t, types.RouteDocumentSearch, res.Route)
	assert.Equal(t, "The warranty lasts two years.", res.Answer)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, types.Citation{Source: "p.pdf", ChunkID: 3, Snippet: "Warranty: two years from purchase."}, res.Citations[0])
	assert.Equal(t, []string{"p.pdf"}, res.SourcesUsed)
	assert.False(t, res.Memory.MemorySaved)
	assert.NotEqual(t, uuid.Nil, res.ID)

	var rag string
	for _, p := range gen.prompts {
		if strings.Contains(p, "[Source: p.pdf, Chunk 3]") {
			rag = p
		}
	}
	assert.Contains(t, rag, "Returns within 30 days.")
	assert.NotContains(t, rag, "never retrieved")
}

func TestHandleTurnWithoutDocumentDowngrades(t *testing.T) {
	gen := &roleGenerator{route: "document_search", answer: "Hello there.", memory: noMemory}
	a, _ := newTestAgent(t, gen, &stubLoader{})

	res, err := a.HandleTurn(context.Background(), "What does section 2 say?")
	require.NoError(t, err)

	assert.Equal(t, types.RouteGeneral, res.Route)
	assert.Empty(t, res.Citations)
	assert.Empty(t, res.SourcesUsed)
}

func TestHandleTurnSavesMemory(t *testing.T) {
	gen := &roleGenerator{
		route:  "general",
		answer: "Noted, tea it is.",
		memory: `{"should_save": true, "user_facts": ["User likes tea"], "company_facts": [], "confidence": 0.9}`,
	}
	a, user := newTestAgent(t, gen, &stubLoader{})

	res, err := a.HandleTurn(context.Background(), "I like tea")
	require.NoError(t, err)
	assert.True(t, res.Memory.MemorySaved)
	assert.Equal(t, 1, res.Memory.UserFactsWritten)

	content, err := user.Read()
	require.NoError(t, err)
	assert.Contains(t, content, "- User likes tea")
}

func TestHandleTurnErrors(t *testing.T) {
	t.Run("generation failure", func(t *testing.T) {
		gen := &roleGenerator{route: "general", answerErr: errors.New("model down"), memory: noMemory}
		a, _ := newTestAgent(t, gen, &stubLoader{})

		_, err := a.HandleTurn(context.Background(), "hi")
		var ext *types.ExternalCallError
		assert.ErrorAs(t, err, &ext)
	})

	t.Run("retrieval failure", func(t *testing.T) {
		gen := &roleGenerator{route: "document_search", answer: "x", memory: noMemory}
		a, _ := newTestAgent(t, gen, &stubLoader{})
		a.SetIndex(failingIndex{}, types.Document{Source: "p.pdf"})

		_, err := a.HandleTurn(context.Background(), "what is it?")
		var ext *types.ExternalCallError
		assert.ErrorAs(t, err, &ext)
	})
}

func TestLoadDocument(t *testing.T) {
	loader := &stubLoader{}
	a, _ := newTestAgent(t, &roleGenerator{}, loader)
	assert.False(t, a.HasDocument())
	assert.Nil(t, a.Document())

	doc, err := a.LoadDocument(context.Background(), "/tmp/uploads/manual.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, "documents", loader.collection)
	assert.Equal(t, "manual.pdf", doc.Source)
	assert.True(t, a.HasDocument())
	require.NotNil(t, a.Document())
	assert.Equal(t, 4, a.Document().Chunks)

	_, err = a.LoadDocument(context.Background(), "/tmp/uploads/other.pdf", "archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", loader.collection)
}

func TestLoadDocumentFailureKeepsActiveDocument(t *testing.T) {
	loader := &stubLoader{}
	a, _ := newTestAgent(t, &roleGenerator{}, loader)
	_, err := a.LoadDocument(context.Background(), "a.pdf", "")
	require.NoError(t, err)

	loader.err = types.NotFoundf("PDF missing.pdf")
	_, err = a.LoadDocument(context.Background(), "missing.pdf", "")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, "a.pdf", a.Document().Source)
}
