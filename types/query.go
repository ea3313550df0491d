package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type QueryParams struct {
	Prompt string `json:"prompt" validate:"required,max=8000"`
}

type DocumentParams struct {
	Collection string `form:"collection" validate:"omitempty,alphanum,max=64"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string {
	return validationErrors(validate.Struct(params))
}

func (params *DocumentParams) Validate() map[string]string {
	return validationErrors(validate.Struct(params))
}

// ValidateDecision checks a decoded memory decision against its field rules.
func ValidateDecision(d *MemoryDecision) error {
	return validate.Struct(d)
}

func validationErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}
	errors := make(map[string]string)
	for _, e := range errs {
		errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return errors
}

type MemoryView struct {
	User    string `json:"user"`
	Company string `json:"company"`
}

type DocumentStatus struct {
	Loaded   bool      `json:"loaded"`
	Document *Document `json:"document,omitempty"`
}
