// Package vision defines the AI metadata-extraction collaborator at its
// interface. The model call itself lives outside the core; implementations
// may fail outright or populate any subset of fields, and the processing
// cache's merge semantics absorb partial results.
package vision

import "context"

// Fields is the sparse metadata an extraction run produced. Nil means the
// model said nothing about that field, as distinct from an empty or zero value.
type Fields struct {
	Title        *string
	Description  *string
	Condition    *string
	Price        *float64
	Model        *string
	Country      *string
	Year         *int
	Denomination *string
}

// Extractor analyzes an item image and returns listing metadata for it.
type Extractor interface {
	// Extract runs the model against the image at path. promptVariant
	// selects the prompt template (e.g. "postcard", "stamp").
	Extract(ctx context.Context, imagePath, promptVariant string) (Fields, error)
}
