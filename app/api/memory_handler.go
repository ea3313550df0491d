package api

import (
	"errors"

	"docchat/memory"
	"docchat/types"

	"github.com/gofiber/fiber/v2"
)

type MemoryHandler struct {
	user    *memory.FileStore
	company *memory.FileStore
}

func NewMemoryHandler(user, company *memory.FileStore) *MemoryHandler {
	return &MemoryHandler{
		user:    user,
		company: company,
	}
}

// HandleGet returns both stores with their management headers stripped.
func (h *MemoryHandler) HandleGet(c *fiber.Ctx) error {
	view, err := h.view()
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// HandleClear resets both stores to their header line.
func (h *MemoryHandler) HandleClear(c *fiber.Ctx) error {
	if err := errors.Join(h.user.Clear(), h.company.Clear()); err != nil {
		return err
	}
	view, err := h.view()
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (h *MemoryHandler) view() (types.MemoryView, error) {
	user, err := h.user.Read()
	if err != nil {
		return types.MemoryView{}, err
	}
	company, err := h.company.Read()
	if err != nil {
		return types.MemoryView{}, err
	}
	return types.MemoryView{
		User:    memory.Render(user),
		Company: memory.Render(company),
	}, nil
}
