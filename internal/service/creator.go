package core

import (
	"context"
	"errors"
	"fmt"

	"giftvault/server/internal/model"
)

// CardCreator produces one gift card for the given purchase amount. The real
// implementation drives a browser session and is slow (tens of seconds);
// tests swap in a deterministic double.
type CardCreator interface {
	Create(ctx context.Context, amount string) (model.Card, error)
}

// CreatorFunc adapts a function to the CardCreator interface.
type CreatorFunc func(ctx context.Context, amount string) (model.Card, error)

// Create implements CardCreator.
func (f CreatorFunc) Create(ctx context.Context, amount string) (model.Card, error) {
	return f(ctx, amount)
}

// CreationErrorKind classifies why a creation attempt failed.
type CreationErrorKind string

const (
	// CreationTimeout means the attempt exceeded its bounded timeout.
	CreationTimeout CreationErrorKind = "timeout"
	// CreationElementNotFound means a page element the flow depends on was missing.
	CreationElementNotFound CreationErrorKind = "element_not_found"
	// CreationNoCardID means the purchase finished but no card identifier
	// could be extracted from the result.
	CreationNoCardID CreationErrorKind = "no_card_id"
	// CreationFailed covers every other attempt failure.
	CreationFailed CreationErrorKind = "failed"
)

// CreationError is the error type every CardCreator failure resolves to.
type CreationError struct {
	Kind CreationErrorKind
	Step string
	Err  error
}

// Error implements the error interface.
func (e *CreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("card creation %s at %s: %v", e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("card creation %s at %s", e.Kind, e.Step)
}

// Unwrap returns the underlying error.
func (e *CreationError) Unwrap() error {
	return e.Err
}

// NewCreationError builds a CreationError for the given step.
func NewCreationError(kind CreationErrorKind, step string, err error) *CreationError {
	return &CreationError{Kind: kind, Step: step, Err: err}
}

// AsCreationError extracts a CreationError if err carries one.
func AsCreationError(err error) (*CreationError, bool) {
	var ce *CreationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
