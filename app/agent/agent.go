package agent

import (
	"context"
	"sync"
	"time"

	"docchat/generation"
	"docchat/logger"
	"docchat/memory"
	"docchat/retrieval"
	"docchat/router"
	"docchat/store"
	"docchat/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Loader indexes one PDF into a fresh collection.
type Loader interface {
	Run(ctx context.Context, pdfPath, collection string) (*store.Index, types.Document, error)
}

type Config struct {
	Collection string
	TopK       int
}

// Agent runs conversation turns against at most one active document.
// Turns and document loads must not overlap; the HTTP layer serializes them.
type Agent struct {
	router     *router.Router
	dispatcher *generation.Dispatcher
	memory     *memory.Manager
	loader     Loader
	collection string
	topK       int
	logger     *zap.Logger

	mu    sync.RWMutex
	index retrieval.Querier
	doc   *types.Document
}

func New(cfg Config, r *router.Router, d *generation.Dispatcher, m *memory.Manager, loader Loader, log *zap.Logger) *Agent {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Agent{
		router:     r,
		dispatcher: d,
		memory:     m,
		loader:     loader,
		collection: cfg.Collection,
		topK:       cfg.TopK,
		logger:     log.Named("agent"),
	}
}

// HandleTurn routes the query, answers it and lets the memory manager
// decide what to keep. A failed memory update does not fail the turn.
func (a *Agent) HandleTurn(ctx context.Context, query string) (*types.TurnResult, error) {
	start := time.Now()
	id := uuid.New()
	log := a.logger.With(zap.String("turn", id.String()))

	a.mu.RLock()
	index := a.index
	a.mu.RUnlock()

	route := a.router.Route(ctx, query, index != nil)
	log.Info("query routed", zap.String("route", string(route)), zap.String("query", logger.Truncate(query, 80)))

	var chunks []types.RetrievedChunk
	if route == types.RouteDocumentSearch && index != nil {
		var err error
		chunks, err = retrieval.New(index, a.topK, log).Retrieve(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	result, err := a.dispatcher.Generate(ctx, query, chunks, types.ModeFor(route))
	if err != nil {
		return nil, err
	}

	mem, err := a.memory.Process(ctx, query, result.Answer)
	if err != nil {
		log.Error("memory update failed", zap.Error(err))
	}

	log.Info("turn completed",
		zap.Int("citations", len(result.Citations)),
		zap.Bool("memory_saved", mem.MemorySaved),
		zap.Duration("took", time.Since(start)))

	return &types.TurnResult{
		ID:          id,
		Route:       route,
		Answer:      result.Answer,
		Citations:   result.Citations,
		SourcesUsed: result.SourcesUsed,
		Memory:      mem,
		Timestamp:   time.Now(),
	}, nil
}

// LoadDocument indexes pdfPath into collection (the configured one when
// empty) and makes it the active document.
func (a *Agent) LoadDocument(ctx context.Context, pdfPath, collection string) (types.Document, error) {
	if collection == "" {
		collection = a.collection
	}
	idx, doc, err := a.loader.Run(ctx, pdfPath, collection)
	if err != nil {
		return types.Document{}, err
	}
	a.SetIndex(idx, doc)
	a.logger.Info("active document changed", zap.String("source", doc.Source), zap.Int("chunks", doc.Chunks))
	return doc, nil
}

func (a *Agent) SetIndex(index retrieval.Querier, doc types.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.index = index
	a.doc = &doc
}

// Document returns the active document, or nil when none is loaded.
func (a *Agent) Document() *types.Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.doc == nil {
		return nil
	}
	doc := *a.doc
	return &doc
}

func (a *Agent) HasDocument() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index != nil
}

// Memory returns the user and company stores.
func (a *Agent) Memory() (user, company *memory.FileStore) {
	return a.memory.Stores()
}
