package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"docchat/model"
	"docchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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

func newStores(t *testing.T) (*FileStore, *FileStore) {
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "USER_MEMORY.md"), "User"),
		NewFileStore(filepath.Join(dir, "COMPANY_MEMORY.md"), "Company")
}

func TestFileStoreReadMissing(t *testing.T) {
	user, _ := newStores(t)
	content, err := user.Read()
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestAppendFactsCreatesFileWithHeader(t *testing.T) {
	user, _ := newStores(t)

	n, err := AppendFacts(user, []string{"Prefers Go", "  ", "Works at Acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	content, err := user.Read()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "<!-- User memory - managed by the memory system -->\n"))
	assert.Regexp(t, regexp.MustCompile(`\n## Session - \d{4}-\d{2}-\d{2} \d{2}:\d{2}\n\n- Prefers Go\n- Works at Acme\n$`), content)
}

func TestAppendFactsIsIdempotent(t *testing.T) {
	user, _ := newStores(t)
	facts := []string{"Prefers Go", "Works at Acme"}

	n, err := AppendFacts(user, facts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	before, err := user.Read()
	require.NoError(t, err)

	n, err = AppendFacts(user, facts)
	require.NoError(t, err)
	assert.Zero(t, n)
	after, err := user.Read()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAppendFactsDedup(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		facts    []string
		want     int
	}{
		{"case insensitive", []string{"Likes Tea"}, []string{"likes tea"}, 0},
		{"substring of existing", []string{"User likes green tea"}, []string{"likes green"}, 0},
		{"superstring is new", []string{"likes tea"}, []string{"likes tea with milk"}, 1},
		{"duplicate inside batch", nil, []string{"likes tea", "Likes Tea "}, 1},
		{"empty batch", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, _ := newStores(t)
			if len(tt.existing) > 0 {
				_, err := AppendFacts(user, tt.existing)
				require.NoError(t, err)
			}
			n, err := AppendFacts(user, tt.facts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestAppendFactsWithHeader(t *testing.T) {
	user, _ := newStores(t)
	_, err := AppendFactsWithHeader(user, []string{"fact"}, "## Imported")
	require.NoError(t, err)

	content, err := user.Read()
	require.NoError(t, err)
	assert.Contains(t, content, "\n\n## Imported\n\n- fact\n")
}

func TestClearAndRender(t *testing.T) {
	user, company := newStores(t)
	_, err := AppendFacts(user, []string{"likes tea"})
	require.NoError(t, err)

	assert.Regexp(t, `^## Session - .*\n\n- likes tea$`, mustRead(t, user, true))

	require.NoError(t, user.Clear())
	assert.Equal(t, "<!-- User memory - managed by the memory system -->\n", mustRead(t, user, false))
	assert.Empty(t, mustRead(t, user, true))

	require.NoError(t, company.Clear())
	assert.Equal(t, "<!-- Company memory - managed by the memory system -->\n", mustRead(t, company, false))
}

func TestRenderStripsMultilineComments(t *testing.T) {
	in := "<!-- header\nspanning lines -->\n\n## Session\n- a <!-- inline --> b\n"
	assert.Equal(t, "## Session\n- a  b", Render(in))
}

func mustRead(t *testing.T, s *FileStore, render bool) string {
	t.Helper()
	content, err := s.Read()
	require.NoError(t, err)
	if render {
		return Render(content)
	}
	return content
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    types.MemoryDecision
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"should_save": true, "user_facts": ["likes tea"], "company_facts": [], "confidence": 0.9}`,
			want: types.MemoryDecision{ShouldSave: true, UserFacts: []string{"likes tea"}, CompanyFacts: []string{}, Confidence: 0.9},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"should_save\": false, \"confidence\": 0.0}\n```",
			want: types.MemoryDecision{UserFacts: []string{}, CompanyFacts: []string{}},
		},
		{name: "prose", raw: "Sure! Here is the JSON you asked for.", wantErr: true},
		{name: "confidence out of range", raw: `{"should_save": true, "confidence": 1.5}`, wantErr: true},
		{name: "wrong type", raw: `{"should_save": "yes"}`, wantErr: true},
		{name: "trailing object", raw: `{"should_save": true} {"should_save": false}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.MemoryDecision{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractorFallsBackToDefault(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		e := NewExtractor(&stubGenerator{err: errors.New("quota")}, zap.NewNop())
		assert.Equal(t, types.MemoryDecision{}, e.Extract(context.Background(), "hi", "hello"))
	})
	t.Run("garbage", func(t *testing.T) {
		e := NewExtractor(&stubGenerator{reply: "not json"}, zap.NewNop())
		assert.Equal(t, types.MemoryDecision{}, e.Extract(context.Background(), "hi", "hello"))
	})
}

func TestExtractorPromptCarriesTurn(t *testing.T) {
	gen := &stubGenerator{reply: `{"should_save": false, "confidence": 0}`}
	NewExtractor(gen, zap.NewNop()).Extract(context.Background(), "I like tea", "Noted.")

	require.Len(t, gen.last, 2)
	assert.Equal(t, model.RoleSystem, gen.last[0].Role)
	assert.Contains(t, gen.last[1].Content, "User: I like tea\nAssistant: Noted.")
}

func TestManagerConfidenceGate(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantSaved  bool
		wantUser   int
		wantConfid float64
	}{
		{"at threshold", `{"should_save": true, "user_facts": ["likes tea"], "confidence": 0.7}`, true, 1, 0.7},
		{"below threshold", `{"should_save": true, "user_facts": ["likes tea"], "confidence": 0.69}`, false, 0, 0.69},
		{"should not save", `{"should_save": false, "user_facts": ["likes tea"], "confidence": 0.99}`, false, 0, 0.99},
		{"unparseable", `oops`, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, company := newStores(t)
			m := NewManager(NewExtractor(&stubGenerator{reply: tt.reply}, zap.NewNop()), user, company, DefaultConfidenceThreshold, zap.NewNop())

			res, err := m.Process(context.Background(), "I like tea", "Noted.")
			require.NoError(t, err)
			assert.Equal(t, tt.wantSaved, res.MemorySaved)
			assert.Equal(t, tt.wantUser, res.UserFactsWritten)
			assert.Zero(t, res.CompanyFactsWritten)
			assert.InDelta(t, tt.wantConfid, res.Confidence, 1e-9)

			if !tt.wantSaved {
				_, err := os.Stat(user.Path())
				assert.True(t, errors.Is(err, os.ErrNotExist))
			}
		})
	}
}

func TestManagerLikesTeaScenario(t *testing.T) {
	user, company := newStores(t)
	gen := &stubGenerator{reply: `{"should_save": true, "user_facts": ["likes tea"], "company_facts": [], "confidence": 0.9}`}
	m := NewManager(NewExtractor(gen, zap.NewNop()), user, company, DefaultConfidenceThreshold, zap.NewNop())

	first, err := m.Process(context.Background(), "I like tea", "Noted.")
	require.NoError(t, err)
	assert.Equal(t, types.MemoryResult{MemorySaved: true, UserFactsWritten: 1, Confidence: 0.9}, first)

	second, err := m.Process(context.Background(), "I like tea", "Noted.")
	require.NoError(t, err)
	assert.Equal(t, types.MemoryResult{MemorySaved: false, UserFactsWritten: 0, Confidence: 0.9}, second)

	content, err := user.Read()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(content, "- likes tea"))
	_, err = os.Stat(company.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestManagerWritesCompanyEvenWhenUserFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	user := NewFileStore(filepath.Join(blocker, "USER_MEMORY.md"), "User")
	company := NewFileStore(filepath.Join(dir, "COMPANY_MEMORY.md"), "Company")
	gen := &stubGenerator{reply: `{"should_save": true, "user_facts": ["a"], "company_facts": ["uses postgres"], "confidence": 0.8}`}
	m := NewManager(NewExtractor(gen, zap.NewNop()), user, company, DefaultConfidenceThreshold, zap.NewNop())

	res, err := m.Process(context.Background(), "u", "a")
	require.Error(t, err)
	assert.True(t, res.MemorySaved)
	assert.Equal(t, 1, res.CompanyFactsWritten)
	assert.Zero(t, res.UserFactsWritten)
}
