package core

import "errors"

// Input validation sentinels shared by the conversation constructors and
// the orchestrator's pre-computation checks.
var (
	ErrEmptyUtterance = errors.New("utterance has empty text")
	ErrNonMonotonicID = errors.New("utterance ids must be strictly increasing")
)

// IsInputError reports whether err is an input validation failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyUtterance) || errors.Is(err, ErrNonMonotonicID)
}
