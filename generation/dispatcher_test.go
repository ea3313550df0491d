package generation

import (
	"context"
	"errors"
	"testing"

	"docchat/model"
	"docchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
	last  []model.Message
}

func (g *stubGenerator) Invoke(_ context.Context, messages []model.Message) (string, error) {
	g.calls++
	g.last = messages
	return g.reply, g.err
}

type stubMemory struct {
	content string
	err     error
}

func (m stubMemory) Read() (string, error) { return m.content, m.err }

type fixedCounter int

func (c fixedCounter) Count(string) int { return int(c) }

func TestDispatcherRAGScenario(t *testing.T) {
	gen := &stubGenerator{reply: "Transformers use self-attention [Source: p.pdf, Chunk 3]."}
	d := NewDispatcher(gen, stubMemory{}, stubMemory{}, zap.NewNop(), WithTokenCounter(fixedCounter(7)))
	chunks := []types.RetrievedChunk{{Source: "p.pdf", ChunkID: 3, Content: "Self-attention relates positions of a sequence."}}

	res, err := d.Generate(context.Background(), "How do transformers work?", chunks, types.ModeRAG)
	require.NoError(t, err)

	assert.Equal(t, "Transformers use self-attention.", res.Answer)
	assert.Equal(t, []types.Citation{{Source: "p.pdf", ChunkID: 3, Snippet: "Self-attention relates positions of a sequence."}}, res.Citations)
	assert.Equal(t, []string{"p.pdf"}, res.SourcesUsed)

	require.Len(t, gen.last, 2)
	assert.Equal(t, model.RoleSystem, gen.last[0].Role)
	assert.Contains(t, gen.last[0].Content, "--- Document 1 ---\n[Source: p.pdf, Chunk 3]\nSelf-attention")
	assert.Contains(t, gen.last[0].Content, RefusalDocuments)
	assert.Equal(t, "How do transformers work?", gen.last[1].Content)
}

func TestDispatcherRAGWithoutChunks(t *testing.T) {
	gen := &stubGenerator{reply: RefusalDocuments}
	d := NewDispatcher(gen, nil, nil, zap.NewNop())

	res, err := d.Generate(context.Background(), "q", nil, types.ModeRAG)
	require.NoError(t, err)
	assert.Equal(t, RefusalDocuments, res.Answer)
	assert.Empty(t, res.Citations)
	assert.Contains(t, gen.last[0].Content, "No relevant documents found.")
}

func TestDispatcherMemoryMode(t *testing.T) {
	gen := &stubGenerator{reply: " You like tea. [Source: x, Chunk 1] "}
	user := stubMemory{content: "<!-- User memory - managed by the memory system -->\n\n## Session - 2025-01-01 10:00\n\n- likes tea\n"}
	company := stubMemory{content: "<!-- Company memory - managed by the memory system -->\n"}
	d := NewDispatcher(gen, user, company, zap.NewNop())

	res, err := d.Generate(context.Background(), "What do I like?", nil, types.ModeMemory)
	require.NoError(t, err)

	assert.Equal(t, "You like tea. [Source: x, Chunk 1]", res.Answer)
	assert.Empty(t, res.Citations)
	assert.Empty(t, res.SourcesUsed)

	system := gen.last[0].Content
	assert.Contains(t, system, "USER MEMORY:\n## Session - 2025-01-01 10:00\n\n- likes tea")
	assert.NotContains(t, system, "COMPANY MEMORY:")
	assert.NotContains(t, system, "<!--")
	assert.Contains(t, system, RefusalMemory)
}

func TestDispatcherMemoryModeEmptyStoresStillAsks(t *testing.T) {
	gen := &stubGenerator{reply: RefusalMemory}
	d := NewDispatcher(gen, stubMemory{}, stubMemory{}, zap.NewNop())

	res, err := d.Generate(context.Background(), "What is my role?", nil, types.ModeMemory)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, RefusalMemory, res.Answer)
	assert.Contains(t, gen.last[0].Content, "No memories stored yet.")
}

func TestDispatcherMemoryReadError(t *testing.T) {
	gen := &stubGenerator{}
	d := NewDispatcher(gen, stubMemory{err: errors.New("permission denied")}, stubMemory{}, zap.NewNop())

	_, err := d.Generate(context.Background(), "q", nil, types.ModeMemory)
	require.Error(t, err)
	assert.Zero(t, gen.calls)
}

func TestDispatcherGeneralAndUnknownMode(t *testing.T) {
	for _, mode := range []types.Mode{types.ModeGeneral, types.Mode("poetry")} {
		gen := &stubGenerator{reply: "Hello!"}
		d := NewDispatcher(gen, nil, nil, zap.NewNop())
		chunks := []types.RetrievedChunk{{Source: "p.pdf", ChunkID: 1, Content: "ignored"}}

		res, err := d.Generate(context.Background(), "hi", chunks, mode)
		require.NoError(t, err)
		assert.Equal(t, "Hello!", res.Answer)
		assert.Empty(t, res.Citations)
		assert.Equal(t, generalSystemPrompt, gen.last[0].Content)
	}
}

func TestDispatcherModelFailure(t *testing.T) {
	boom := errors.New("503 from provider")
	d := NewDispatcher(&stubGenerator{err: boom}, nil, nil, zap.NewNop())

	_, err := d.Generate(context.Background(), "q", nil, types.ModeGeneral)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var ext *types.ExternalCallError
	assert.ErrorAs(t, err, &ext)
}

func TestDispatcherLogsPromptTokens(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := NewDispatcher(&stubGenerator{reply: "hi"}, nil, nil, zap.New(core), WithTokenCounter(fixedCounter(7)))

	_, err := d.Generate(context.Background(), "hello", nil, types.ModeGeneral)
	require.NoError(t, err)

	entries := logs.FilterMessage("prompt size").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(14), entries[0].ContextMap()["tokens"])
	assert.Equal(t, "general", entries[0].ContextMap()["mode"])
}
