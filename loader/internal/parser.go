package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"docchat/types"

	"go.uber.org/zap"
)

type ParserConfig struct {
	DoclingURL    string
	ExtractImages bool
	CropTop       float64
	CropBottom    float64
}

// PDFParser turns a PDF into typed elements: pdfcpu checks and optionally
// crops the file, docling converts it to markdown, and the markdown is
// tokenized.
type PDFParser struct {
	cfg     ParserConfig
	docling *DoclingClient
	logger  *zap.Logger
}

func NewPDFParser(cfg ParserConfig, logger *zap.Logger) *PDFParser {
	return &PDFParser{
		cfg:     cfg,
		docling: NewDoclingClient(cfg.DoclingURL),
		logger:  logger.Named("pdf_parser"),
	}
}

func (p *PDFParser) Parse(ctx context.Context, path string) ([]types.Element, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NotFoundf("PDF %s", path)
		}
		return nil, err
	}

	start := time.Now()
	pages, err := Inspect(path)
	if err != nil {
		return nil, err
	}
	p.logger.Info("partitioning document", zap.String("file", filepath.Base(path)), zap.Int("pages", pages))

	src := path
	if p.cfg.CropTop > 0 || p.cfg.CropBottom > 0 {
		cropped, err := croppedCopy(path, p.cfg.CropTop, p.cfg.CropBottom)
		if err != nil {
			return nil, err
		}
		defer os.Remove(cropped)
		src = cropped
	}

	md, err := p.docling.ConvertPDFToMD(ctx, src, p.cfg.ExtractImages)
	if err != nil {
		return nil, types.NewExternalCallError("convert "+filepath.Base(path), err)
	}

	elements := TokenizeMD(md)
	if !p.cfg.ExtractImages {
		elements = withoutImages(elements)
	}

	p.logger.Info("extracted elements",
		zap.String("file", filepath.Base(path)),
		zap.Int("elements", len(elements)),
		zap.Duration("took", time.Since(start)))
	return elements, nil
}

func withoutImages(elements []types.Element) []types.Element {
	out := elements[:0]
	for _, e := range elements {
		if e.Kind != types.ElementImage {
			out = append(out, e)
		}
	}
	return out
}
