package types

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing file, directory or collection.
var ErrNotFound = errors.New("not found")

// ExternalCallError wraps a failure of the model, embedder or index.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

func NewExternalCallError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalCallError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalCallError{Op: op, Err: err}
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
