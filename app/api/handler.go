package api

import (
	"context"

	"docchat/types"

	"github.com/gofiber/fiber/v2"
)

// TurnHandler answers one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, query string) (*types.TurnResult, error)
}

type ChatHandler struct {
	agent TurnHandler
}

func NewChatHandler(agent TurnHandler) *ChatHandler {
	return &ChatHandler{
		agent: agent,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	resp, err := h.agent.HandleTurn(c.UserContext(), params.Prompt)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
