package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized            = errors.New("not initialized")
	ErrData                      = errors.New("data error")
	ErrClassificationUnavailable = errors.New("classification unavailable")
	ErrGeneration                = errors.New("generation failure")
	ErrInvalidInput              = errors.New("invalid input")
	ErrNotFound                  = errors.New("not found")
	ErrTemporary                 = errors.New("temporary failure")
)

// NotInitializedMessage is returned to callers that query before the first ingestion.
const NotInitializedMessage = "Vectorstore not initialized. Run /embed first."

// ErrIndexNotReady is the cause behind ErrNotInitialized when no index has
// been built or loaded yet. Other ErrNotInitialized causes keep their own text.
var ErrIndexNotReady = errors.New(NotInitializedMessage)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
