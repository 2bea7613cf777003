package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidAnalysisID = errors.New("invalid analysis ID")
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrInvalidSimilarity = errors.New("similarity must be between -1 and 1")
	ErrMissingImagePath  = errors.New("image path is required")

	// Vector errors
	ErrEmptyVector = errors.New("vector cannot be empty")
	ErrNotAVector  = errors.New("value cannot be coerced to a float vector")
)
