package store

import (
	"context"
	"fmt"

	"docchat/model"
	"docchat/types"

	"go.uber.org/zap"
)

// Index is one named collection bound to the embedder that produced it.
type Index struct {
	storer     VectorStorer
	embedder   model.Embedder
	collection string
	logger     *zap.Logger
}

// Create embeds chunks and then swaps them in as the only content of
// collection. A failure at any step leaves the previous collection intact.
func Create(ctx context.Context, storer VectorStorer, embedder model.Embedder, collection string, doc types.Document, chunks []types.RetrievedChunk, logger *zap.Logger) (*Index, error) {
	idx := &Index{storer: storer, embedder: embedder, collection: collection, logger: logger.Named("index")}
	if err := idx.embed(ctx, doc, chunks); err != nil {
		return nil, err
	}

	doc.Collection = collection
	doc.Chunks = len(chunks)
	if err := storer.ReplaceCollection(ctx, collection, doc, chunks); err != nil {
		return nil, types.NewExternalCallError("replace collection", err)
	}
	idx.logIndexed(doc, len(chunks))
	return idx, nil
}

// Load opens an existing collection. A missing collection wraps
// types.ErrNotFound.
func Load(ctx context.Context, storer VectorStorer, embedder model.Embedder, collection string, logger *zap.Logger) (*Index, error) {
	ok, err := storer.HasCollection(ctx, collection)
	if err != nil {
		return nil, types.NewExternalCallError("load collection", err)
	}
	if !ok {
		return nil, types.NotFoundf("collection %q", collection)
	}
	return &Index{storer: storer, embedder: embedder, collection: collection, logger: logger.Named("index")}, nil
}

// Add embeds chunks and appends them together with their document record.
func (i *Index) Add(ctx context.Context, doc types.Document, chunks []types.RetrievedChunk) error {
	if err := i.embed(ctx, doc, chunks); err != nil {
		return err
	}

	if err := i.storer.SaveChunks(ctx, i.collection, doc.ID, chunks); err != nil {
		return types.NewExternalCallError("save chunks", err)
	}
	doc.Collection = i.collection
	doc.Chunks = len(chunks)
	if err := i.storer.SaveDocument(ctx, i.collection, doc); err != nil {
		return types.NewExternalCallError("save document", err)
	}
	i.logIndexed(doc, len(chunks))
	return nil
}

func (i *Index) embed(ctx context.Context, doc types.Document, chunks []types.RetrievedChunk) error {
	for n := range chunks {
		vec, err := i.embedder.Embed(ctx, chunks[n].Content)
		if err != nil {
			return types.NewExternalCallError(fmt.Sprintf("embed chunk %d", chunks[n].ChunkID), err)
		}
		chunks[n].Embedding = vec
		chunks[n].DocID = doc.ID
	}
	return nil
}

func (i *Index) logIndexed(doc types.Document, chunks int) {
	i.logger.Info("chunks indexed",
		zap.String("collection", i.collection),
		zap.String("source", doc.Source),
		zap.Int("chunks", chunks))
}

// Query returns the k chunks nearest to text, nearest first.
func (i *Index) Query(ctx context.Context, text string, k int) ([]types.RetrievedChunk, error) {
	vec, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, types.NewExternalCallError("embed query", err)
	}
	chunks, err := i.storer.Search(ctx, i.collection, vec, k)
	if err != nil {
		return nil, types.NewExternalCallError("search", err)
	}
	return chunks, nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	return i.storer.Count(ctx, i.collection)
}

func (i *Index) Documents(ctx context.Context) ([]types.Document, error) {
	return i.storer.GetDocuments(ctx, i.collection)
}

func (i *Index) Collection() string { return i.collection }
