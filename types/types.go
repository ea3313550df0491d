package types

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentTable ContentType = "table"
	ContentImage ContentType = "image"
)

type ElementKind string

const (
	ElementTitle ElementKind = "title"
	ElementText  ElementKind = "text"
	ElementTable ElementKind = "table"
	ElementImage ElementKind = "image"
)

// Element is one typed unit produced by the document parser.
type Element struct {
	Kind      ElementKind
	Text      string
	TableHTML string
	Image     string // base64 payload
	ImageMIME string
}

// Block is a contiguous run of elements that becomes one chunk.
type Block struct {
	Elements []Element
}

// ContentParts is a block partitioned by kind.
type ContentParts struct {
	Text   string   `json:"text"`
	Tables []string `json:"tables_html"`
	Images []string `json:"images"`
	// ImageMIMETypes parallels Images.
	ImageMIMETypes []string      `json:"image_mime_types,omitempty"`
	Types          []ContentType `json:"types"`
}

func (p ContentParts) HasTables() bool { return len(p.Tables) > 0 }
func (p ContentParts) HasImages() bool { return len(p.Images) > 0 }

// RawPayload keeps the original text, table markup and image data of a chunk.
type RawPayload struct {
	RawText      string   `json:"raw_text"`
	TablesHTML   []string `json:"tables_html"`
	ImagesBase64 []string `json:"images_base64"`
}

// RetrievedChunk is an indexed unit of a source document. It is written once
// at ingestion and only read afterwards.
type RetrievedChunk struct {
	ID           uuid.UUID
	DocID        uuid.UUID
	Content      string
	Source       string
	ChunkID      int
	HasTables    bool
	HasImages    bool
	ContentTypes []ContentType
	Raw          RawPayload
	Embedding    []float32
	Distance     float64
}

type Citation struct {
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
	Snippet string `json:"snippet"`
}

type GenerationResult struct {
	Answer      string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	SourcesUsed []string   `json:"sources_used"`
}

type Route string

const (
	RouteDocumentSearch Route = "document_search"
	RouteMemoryLookup   Route = "memory_lookup"
	RouteGeneral        Route = "general"
)

type Mode string

const (
	ModeRAG     Mode = "rag"
	ModeMemory  Mode = "memory"
	ModeGeneral Mode = "general"
)

// ModeFor maps a route onto the generation mode that answers it.
func ModeFor(r Route) Mode {
	switch r {
	case RouteDocumentSearch:
		return ModeRAG
	case RouteMemoryLookup:
		return ModeMemory
	default:
		return ModeGeneral
	}
}

// MemoryDecision is the extractor's verdict for one conversation turn.
// The zero value means nothing should be saved.
type MemoryDecision struct {
	ShouldSave   bool     `json:"should_save"`
	UserFacts    []string `json:"user_facts" validate:"dive,max=2000"`
	CompanyFacts []string `json:"company_facts" validate:"dive,max=2000"`
	Confidence   float64  `json:"confidence" validate:"gte=0,lte=1"`
}

type MemoryResult struct {
	MemorySaved         bool    `json:"memory_saved"`
	UserFactsWritten    int     `json:"user_facts_written"`
	CompanyFactsWritten int     `json:"company_facts_written"`
	Confidence          float64 `json:"confidence"`
}

type TurnResult struct {
	ID          uuid.UUID    `json:"id"`
	Route       Route        `json:"route"`
	Answer      string       `json:"answer"`
	Citations   []Citation   `json:"citations"`
	SourcesUsed []string     `json:"sources_used"`
	Memory      MemoryResult `json:"memory"`
	Timestamp   time.Time    `json:"timestamp"`
}

type Document struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	SourcePath string    `json:"source_path"`
	Collection string    `json:"collection"`
	Chunks     int       `json:"chunks"`
	CreatedAt  time.Time `json:"created_at"`
}

// SortedTypes returns the content types of set in a stable order.
func SortedTypes(set map[ContentType]struct{}) []ContentType {
	out := make([]ContentType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
