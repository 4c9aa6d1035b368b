// Package ai is the boundary to the generative model. Callers describe what
// they want (free text, schema-constrained JSON or an image) and get plain
// values back; the model's transport stays behind Generator.
package ai

import (
	"context"
	"encoding/json"
)

// TextRequest asks for free-form text.
type TextRequest struct {
	System      string
	Prompt      string
	Temperature *float32
}

// JSONRequest asks for a JSON document conforming to Schema (a JSON Schema).
type JSONRequest struct {
	System string
	Prompt string
	Schema json.RawMessage
}

// ImageRequest asks for a single generated image.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

// Image is raw generated image data.
type Image struct {
	MIMEType string
	Data     []byte
}

// Generator is the generative capability used by every composer.
type Generator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	// GenerateJSON returns the model's JSON after fence stripping and schema
	// validation. Malformed or non-conforming output is an error.
	GenerateJSON(ctx context.Context, req JSONRequest) (json.RawMessage, error)
	GenerateImage(ctx context.Context, req ImageRequest) (Image, error)
}
