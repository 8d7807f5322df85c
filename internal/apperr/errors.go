// Package apperr holds the error kinds shared across the query pipeline.
// Callers classify failures with errors.Is; the wrapped chain keeps the
// original cause.
package apperr

import "errors"

var (
	// ErrConfiguration marks missing or inconsistent startup artifacts
	// (index files, invalid settings). No query can proceed.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmbeddingService marks a failed call to the embedding service.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrGenerationService marks a failed call to the generation service.
	ErrGenerationService = errors.New("generation service error")
	// ErrValidation marks invalid caller input.
	ErrValidation = errors.New("validation error")
)

// IsServiceError reports whether err came from an external model service.
func IsServiceError(err error) bool {
	return errors.Is(err, ErrEmbeddingService) || errors.Is(err, ErrGenerationService)
}
