package chat

import "github.com/pkg/errors"

var (
	// ErrValidation marks malformed structured payloads, e.g. a record that
	// carries both "value" and "object" or neither.
	ErrValidation = errors.New("invalid message payload")

	// ErrConflict marks user/avatar overrides passed alongside a pre-built
	// message, whose identity fields are already fixed.
	ErrConflict = errors.New("conflicting message identity override")
)
