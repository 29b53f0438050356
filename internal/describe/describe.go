// Package describe implements the image description collaborators. Two
// backends are provided: an OpenAI-compatible chat-completions client and a
// Gemini client. Both produce the same three aspects per image: a free-text
// description, a tag list, and a structured JSON description.
package describe

import (
	"context"
	"fmt"

	"github.com/rmarkelov/archivarius/internal/config"

	"log/slog"
)

// Result is one model answer for a single aspect: the generated text, the
// provider's usage metadata encoded as JSON (empty when the provider
// reports none), and the wall-clock seconds the call took.
type Result struct {
	Text    string
	Usage   string
	Elapsed float64
}

// ImageDescriber generates the three description aspects for one image.
// Implementations must be safe for concurrent use.
type ImageDescriber interface {
	Describe(ctx context.Context, mimeType string, image []byte) (Result, error)
	Tag(ctx context.Context, mimeType string, image []byte) (Result, error)
	StructuredDescription(ctx context.Context, mimeType string, image []byte) (Result, error)
}

// New selects a describer implementation by the configured provider.
func New(ctx context.Context, cfg config.DescribeConfig, logger *slog.Logger) (ImageDescriber, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIDescriber(cfg, logger), nil
	case "gemini":
		return NewGeminiDescriber(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown describe provider %q", cfg.Provider)
	}
}
