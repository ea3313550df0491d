package retrieval

import (
	"context"
	"fmt"
	"strings"

	"docchat/logger"
	"docchat/types"

	"go.uber.org/zap"
)

const DefaultTopK = 5

const noDocuments = "No relevant documents found."

// Querier is the nearest-neighbour lookup the retriever runs against.
type Querier interface {
	Query(ctx context.Context, text string, k int) ([]types.RetrievedChunk, error)
}

type Retriever struct {
	index  Querier
	topK   int
	logger *zap.Logger
}

func New(index Querier, topK int, log *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, topK: topK, logger: log.Named("retriever")}
}

// Retrieve returns up to topK chunks nearest to query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]types.RetrievedChunk, error) {
	r.logger.Info("retrieving", zap.String("query", logger.Truncate(query, 80)), zap.Int("top_k", r.topK))
	chunks, err := r.index.Query(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	r.logger.Info("retrieved", zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// FormatContext renders chunks as labeled sections so the model can cite
// them with [Source: <name>, Chunk <n>] markers. Table markup is appended
// to chunks that carry tables.
func FormatContext(chunks []types.RetrievedChunk) string {
	if len(chunks) == 0 {
		return noDocuments
	}

	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		content := c.Content
		if c.HasTables && len(c.Raw.TablesHTML) > 0 {
			tables := make([]string, len(c.Raw.TablesHTML))
			for j, t := range c.Raw.TablesHTML {
				tables[j] = fmt.Sprintf("Table %d: %s", j+1, t)
			}
			content += "\n\nTABLES:\n" + strings.Join(tables, "\n")
		}
		parts = append(parts, fmt.Sprintf("--- Document %d ---\n[Source: %s, Chunk %d]\n%s", i+1, source, c.ChunkID, content))
	}
	return strings.Join(parts, "\n\n")
}
