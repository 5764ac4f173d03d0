package opinion

import "errors"

var (
	// ErrDuplicateVote is returned when a (user, opinion) pair has already voted.
	ErrDuplicateVote = errors.New("opinion: duplicate vote")
	// ErrNotFound is returned when a referenced opinion, theme, or stance does not exist.
	ErrNotFound = errors.New("opinion: not found")
	// ErrInvalidInput is returned for unknown vote types, ratings, or missing identifiers.
	ErrInvalidInput = errors.New("opinion: invalid input")
)
