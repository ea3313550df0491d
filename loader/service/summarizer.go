package service

import (
	"context"
	"fmt"
	"strings"

	"docchat/model"
	"docchat/types"
)

const summaryPrompt = `You are a research document analyst. Given the following content from a document, produce a single dense, keyword-rich paragraph that captures all important details. Your summary will be used as the search index for retrieval-augmented generation, so maximize retrieval relevance.

TEXT:
%s

%s

Respond ONLY with the summary paragraph, no preamble.`

// Summarizer describes multimodal blocks in one paragraph of text that can
// be embedded in place of the tables and images.
type Summarizer struct {
	gen model.Generator
}

func NewSummarizer(gen model.Generator) *Summarizer {
	return &Summarizer{gen: gen}
}

func (s *Summarizer) Summarize(ctx context.Context, parts types.ContentParts) (string, error) {
	text := parts.Text
	if text == "" {
		text = "(no text)"
	}

	tablesSection := ""
	if parts.HasTables() {
		tables := make([]string, len(parts.Tables))
		for i, t := range parts.Tables {
			tables[i] = fmt.Sprintf("Table %d:\n%s", i+1, t)
		}
		tablesSection = "TABLES:\n" + strings.Join(tables, "\n")
	}

	msg := model.User(fmt.Sprintf(summaryPrompt, text, tablesSection))
	for i, img := range parts.Images {
		mime := defaultImageMIME
		if i < len(parts.ImageMIMETypes) {
			mime = parts.ImageMIMETypes[i]
		}
		msg.Images = append(msg.Images, model.Image{MIMEType: mime, Data: img})
	}

	summary, err := s.gen.Invoke(ctx, []model.Message{msg})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}
