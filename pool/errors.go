package pool

import (
	stderrors "errors"

	"github.com/c360/confstream/errors"
)

var (
	// ErrPoolClosed is returned when work is submitted to a closed pool.
	ErrPoolClosed = errors.ErrPoolClosed

	// ErrTimeout is returned when an operation exceeds its deadline. Aliased
	// from the shared taxonomy so callers can match either symbol.
	ErrTimeout = errors.ErrTimeout

	// ErrNilOperation is returned when a nil operation is submitted.
	ErrNilOperation = stderrors.New("operation cannot be nil")
)
