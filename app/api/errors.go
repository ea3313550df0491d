package api

import (
	"errors"
	"fmt"

	"docchat/types"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// NewErrorHandler maps handler errors onto JSON error bodies: not-found
// errors become 404 and failed model or index calls 502.
func NewErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var valErr ValidationError
		if errors.As(err, &valErr) {
			return c.Status(valErr.Status).JSON(valErr)
		}

		apiErr := toError(err)
		if apiErr.Code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("code", apiErr.Code),
				zap.Error(err))
		}
		return c.Status(apiErr.Code).JSON(apiErr)
	}
}

func toError(err error) Error {
	var (
		apiErr   Error
		fiberErr *fiber.Error
		extErr   *types.ExternalCallError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &fiberErr):
		return NewError(fiberErr.Code, fiberErr.Message)
	case errors.Is(err, types.ErrNotFound):
		return NewError(fiber.StatusNotFound, err.Error())
	case errors.As(err, &extErr):
		return NewError(fiber.StatusBadGateway, extErr.Error())
	default:
		return NewError(fiber.StatusInternalServerError, "internal server error")
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrMissingFile(field string) Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: fmt.Sprintf("multipart field %q is required", field),
	}
}

func ErrUnsupportedFile(name string) Error {
	return Error{
		Code:    fiber.StatusUnsupportedMediaType,
		Message: fmt.Sprintf("%s is not a PDF", name),
	}
}
