package describe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/rmarkelov/archivarius/internal/config"
)

const (
	geminiMaxRetries = 3
	geminiRetryDelay = 5 * time.Second
)

// geminiDescriber talks to the Gemini API. Transient server errors (500,
// 503) are retried with a fixed delay before giving up.
type geminiDescriber struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiDescriber creates a describer backed by the Gemini API.
func NewGeminiDescriber(ctx context.Context, cfg config.DescribeConfig, logger *slog.Logger) (ImageDescriber, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Token,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiDescriber{
		client:  client,
		model:   cfg.GeminiModel,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "gemini_describer"),
	}, nil
}

func (d *geminiDescriber) Describe(ctx context.Context, mimeType string, image []byte) (Result, error) {
	return d.generate(ctx, descriptionPrompt, mimeType, image)
}

func (d *geminiDescriber) Tag(ctx context.Context, mimeType string, image []byte) (Result, error) {
	return d.generate(ctx, tagPrompt, mimeType, image)
}

func (d *geminiDescriber) StructuredDescription(ctx context.Context, mimeType string, image []byte) (Result, error) {
	return d.generate(ctx, structuredPrompt, mimeType, image)
}

func (d *geminiDescriber) generate(ctx context.Context, systemPrompt, mimeType string, image []byte) (Result, error) {
	if len(image) == 0 || mimeType == "" {
		return Result{}, fmt.Errorf("image data and MIME type are required")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromBytes(image, mimeType)}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}

	start := time.Now()
	resp, err := d.generateWithRetries(ctx, contents, cfg)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return Result{}, err
	}

	text := resp.Text()
	if text == "" {
		return Result{}, fmt.Errorf("gemini returned empty content")
	}

	result := Result{Text: text, Elapsed: elapsed}
	if resp.UsageMetadata != nil {
		if usage, err := json.Marshal(resp.UsageMetadata); err == nil {
			result.Usage = string(usage)
		}
	}
	return result, nil
}

func (d *geminiDescriber) generateWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= geminiMaxRetries; i++ {
		resp, err = d.client.Models.GenerateContent(ctx, d.model, contents, cfg)
		if err == nil {
			return resp, nil
		}

		d.logger.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", geminiMaxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < geminiMaxRetries {
				d.logger.InfoContext(ctx, "Retrying Gemini API call",
					"delay", geminiRetryDelay, "code", apiErr.Code)
				time.Sleep(geminiRetryDelay)
				continue
			}
			d.logger.ErrorContext(ctx, "Gemini API call failed after max retries",
				"error", err, "code", apiErr.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (code %d): %w",
				geminiMaxRetries, apiErr.Code, err)
		}

		d.logger.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}
