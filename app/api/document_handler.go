package api

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"docchat/types"

	"github.com/gofiber/fiber/v2"
)

// DocumentLoader indexes an uploaded PDF and tracks the active document.
type DocumentLoader interface {
	LoadDocument(ctx context.Context, pdfPath, collection string) (types.Document, error)
	Document() *types.Document
}

type DocumentHandler struct {
	loader    DocumentLoader
	uploadDir string
}

func NewDocumentHandler(loader DocumentLoader, uploadDir string) *DocumentHandler {
	return &DocumentHandler{
		loader:    loader,
		uploadDir: uploadDir,
	}
}

// HandleUpload saves the multipart "file" field into the upload directory
// and indexes it as the new active document.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	var params types.DocumentParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrMissingFile("file")
	}
	name := filepath.Base(fileHeader.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return ErrUnsupportedFile(name)
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveFile(fileHeader, path); err != nil {
		return err
	}

	doc, err := h.loader.LoadDocument(c.UserContext(), path, params.Collection)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *DocumentHandler) HandleStatus(c *fiber.Ctx) error {
	doc := h.loader.Document()
	return c.JSON(types.DocumentStatus{Loaded: doc != nil, Document: doc})
}
