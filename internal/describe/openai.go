package describe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rmarkelov/archivarius/internal/config"
)

// openaiDescriber talks to any OpenAI-compatible chat-completions endpoint,
// including locally hosted vision models behind a custom base URL.
type openaiDescriber struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIDescriber creates a describer backed by the OpenAI-compatible
// API configured in cfg.
func NewOpenAIDescriber(cfg config.DescribeConfig, logger *slog.Logger) ImageDescriber {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openaiDescriber{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "openai_describer"),
	}
}

func (d *openaiDescriber) Describe(ctx context.Context, mimeType string, image []byte) (Result, error) {
	return d.complete(ctx, descriptionPrompt, mimeType, image)
}

func (d *openaiDescriber) Tag(ctx context.Context, mimeType string, image []byte) (Result, error) {
	return d.complete(ctx, tagPrompt, mimeType, image)
}

func (d *openaiDescriber) StructuredDescription(ctx context.Context, mimeType string, image []byte) (Result, error) {
	return d.complete(ctx, structuredPrompt, mimeType, image)
}

func (d *openaiDescriber) complete(ctx context.Context, systemPrompt, mimeType string, image []byte) (Result, error) {
	if len(image) == 0 || mimeType == "" {
		return Result{}, fmt.Errorf("image data and MIME type are required")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		d.logger.ErrorContext(ctx, "Chat completion failed", "model", d.model, "error", err)
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Result{}, fmt.Errorf("chat completion returned no content")
	}

	result := Result{
		Text:    resp.Choices[0].Message.Content,
		Elapsed: elapsed,
	}
	if usage, err := json.Marshal(resp.Usage); err == nil {
		result.Usage = string(usage)
	}
	return result, nil
}
