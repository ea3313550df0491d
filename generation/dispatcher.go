package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docchat/logger"
	"docchat/memory"
	"docchat/model"
	"docchat/retrieval"
	"docchat/types"

	"go.uber.org/zap"
)

// MemoryReader is the read side of a memory store.
type MemoryReader interface {
	Read() (string, error)
}

// Dispatcher produces the answer of a turn in one of the generation modes.
type Dispatcher struct {
	gen     model.Generator
	user    MemoryReader
	company MemoryReader
	tokens  model.TokenCounter
	logger  *zap.Logger
}

type Option func(*Dispatcher)

// WithTokenCounter logs the prompt size of every call at debug level. The
// counter is not consulted when debug logging is off.
func WithTokenCounter(tc model.TokenCounter) Option {
	return func(d *Dispatcher) { d.tokens = tc }
}

func NewDispatcher(gen model.Generator, user, company MemoryReader, log *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{gen: gen, user: user, company: company, logger: log.Named("generation")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate answers query. Only the rag mode uses chunks and yields
// citations; an unknown mode is answered as general.
func (d *Dispatcher) Generate(ctx context.Context, query string, chunks []types.RetrievedChunk, mode types.Mode) (*types.GenerationResult, error) {
	switch mode {
	case types.ModeRAG:
		return d.generateRAG(ctx, query, chunks)
	case types.ModeMemory:
		return d.generateMemory(ctx, query)
	case types.ModeGeneral:
		return d.generateGeneral(ctx, query)
	default:
		d.logger.Warn("unknown generation mode, answering as general", zap.String("mode", string(mode)))
		return d.generateGeneral(ctx, query)
	}
}

func (d *Dispatcher) generateRAG(ctx context.Context, query string, chunks []types.RetrievedChunk) (*types.GenerationResult, error) {
	system := fmt.Sprintf(ragSystemPrompt, retrieval.FormatContext(chunks))

	answer, err := d.invoke(ctx, types.ModeRAG, query, system)
	if err != nil {
		return nil, err
	}

	citations := ExtractCitations(answer, chunks)
	sources := SourcesUsed(citations)
	d.logger.Info("answer generated",
		zap.Int("citations", len(citations)),
		zap.Int("sources", len(sources)))

	return &types.GenerationResult{
		Answer:      StripCitations(answer),
		Citations:   citations,
		SourcesUsed: sources,
	}, nil
}

func (d *Dispatcher) generateMemory(ctx context.Context, query string) (*types.GenerationResult, error) {
	text, err := d.memoryText()
	if err != nil {
		return nil, err
	}

	answer, err := d.invoke(ctx, types.ModeMemory, query, fmt.Sprintf(memorySystemPrompt, text))
	if err != nil {
		return nil, err
	}
	return plainResult(answer), nil
}

func (d *Dispatcher) generateGeneral(ctx context.Context, query string) (*types.GenerationResult, error) {
	answer, err := d.invoke(ctx, types.ModeGeneral, query, generalSystemPrompt)
	if err != nil {
		return nil, err
	}
	return plainResult(answer), nil
}

// memoryText joins the non-empty rendered stores under labeled headers.
func (d *Dispatcher) memoryText() (string, error) {
	var sections []string
	for _, s := range []struct {
		label  string
		reader MemoryReader
	}{
		{"USER MEMORY", d.user},
		{"COMPANY MEMORY", d.company},
	} {
		if s.reader == nil {
			continue
		}
		raw, err := s.reader.Read()
		if err != nil {
			return "", err
		}
		if content := memory.Render(raw); content != "" {
			sections = append(sections, s.label+":\n"+content)
		}
	}
	if len(sections) == 0 {
		return emptyMemory, nil
	}
	return strings.Join(sections, "\n\n"), nil
}

func (d *Dispatcher) invoke(ctx context.Context, mode types.Mode, query, system string) (string, error) {
	messages := []model.Message{model.System(system), model.User(query)}
	if d.tokens != nil && d.logger.Core().Enabled(zap.DebugLevel) {
		d.logger.Debug("prompt size",
			zap.String("mode", string(mode)),
			zap.Int("tokens", model.CountMessages(d.tokens, messages)),
			zap.Int("chars", len(system)+len(query)))
	}

	d.logger.Info("generating answer", zap.String("mode", string(mode)), zap.String("query", logger.Truncate(query, 80)))
	start := time.Now()
	answer, err := d.gen.Invoke(ctx, messages)
	if err != nil {
		return "", types.NewExternalCallError("generate answer", err)
	}
	d.logger.Debug("model answered", zap.Duration("took", time.Since(start)))
	return answer, nil
}

func plainResult(answer string) *types.GenerationResult {
	return &types.GenerationResult{
		Answer:      strings.TrimSpace(answer),
		Citations:   []types.Citation{},
		SourcesUsed: []string{},
	}
}
