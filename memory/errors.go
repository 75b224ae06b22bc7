package memory

import "errors"

var (
	// ErrValidation marks missing or malformed upload fields.
	ErrValidation = errors.New("validation failed")
	// ErrAnalysis marks a failed emotion/embedding service call.
	ErrAnalysis = errors.New("analysis failed")
	// ErrStorage marks a relational or vector-index read/write failure.
	ErrStorage = errors.New("storage failed")
	// ErrNotFound marks a reference to a memory that does not exist.
	ErrNotFound = errors.New("memory not found")
)
