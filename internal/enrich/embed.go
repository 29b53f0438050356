package enrich

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/embed"
	"github.com/rmarkelov/archivarius/internal/vector"
)

// EmbedResult summarizes one embedding pass.
type EmbedResult struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// VectorStore is the slice of the vector store the embedding fan-out needs.
type VectorStore interface {
	EnsureCollection(ctx context.Context, collection string) error
	Upsert(ctx context.Context, collection string, records []vector.Record) error
}

// Embedder runs the embedding fan-out: posts are read in pages, their text
// combined with their media descriptions, embedded in batches, and upserted
// into the experiment's vector collection.
type Embedder struct {
	store     database.Store
	model     embed.TextEmbedder
	vectors   VectorStore
	batchSize int
	logger    *slog.Logger
}

// NewEmbedder creates an embedding fan-out. batchSize bounds how many texts
// go into one embedding call.
func NewEmbedder(store database.Store, model embed.TextEmbedder, vectors VectorStore, batchSize int, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if batchSize <= 0 {
		batchSize = 128
	}
	return &Embedder{
		store:     store,
		model:     model,
		vectors:   vectors,
		batchSize: batchSize,
		logger:    logger.With("component", "embed_fanout"),
	}
}

// Run embeds every post of the export into the given collection. Posts with
// no text and no descriptions are skipped. A batch-level embedding failure
// falls back to one-by-one calls so a single bad item cannot sink its whole
// batch; items that still fail are logged and dropped from the pass.
func (e *Embedder) Run(ctx context.Context, exportID int64, collection string) (*EmbedResult, error) {
	if err := e.vectors.EnsureCollection(ctx, collection); err != nil {
		return nil, err
	}

	result := &EmbedResult{}
	batch := make([]database.PostForEmbedding, 0, e.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		e.processBatch(ctx, collection, batch, result)
		batch = batch[:0]
		return ctx.Err()
	}

	for page := 0; ; page++ {
		posts, err := e.store.PostsForEmbedding(ctx, exportID, e.batchSize, page*e.batchSize)
		if err != nil {
			return result, err
		}

		for _, post := range posts {
			if embeddingText(post) == "" {
				result.Skipped++
				continue
			}
			batch = append(batch, post)
			if len(batch) >= e.batchSize {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}

		if len(posts) < e.batchSize {
			break
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	e.logger.InfoContext(ctx, "Embedding pass finished",
		"export_id", exportID,
		"collection", collection,
		"embedded", result.Embedded,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result, nil
}

// processBatch embeds one batch and upserts the vectors. On a batch-level
// failure every item is retried individually.
func (e *Embedder) processBatch(ctx context.Context, collection string, batch []database.PostForEmbedding, result *EmbedResult) {
	texts := make([]string, len(batch))
	for i, post := range batch {
		texts[i] = embeddingText(post)
	}

	vectors, err := e.model.Embed(ctx, texts)
	if err != nil {
		e.logger.WarnContext(ctx, "Batch embedding failed, falling back to single items",
			"batch_size", len(batch), "error", err)
		for i, post := range batch {
			e.processOne(ctx, collection, post, texts[i], result)
		}
		return
	}

	records := make([]vector.Record, len(batch))
	for i, post := range batch {
		records[i] = vector.Record{
			PostID:    post.PostID,
			Embedding: vectors[i],
			Payload:   map[string]any{"text": texts[i]},
		}
	}
	if err := e.vectors.Upsert(ctx, collection, records); err != nil {
		e.logger.WarnContext(ctx, "Batch upsert failed", "batch_size", len(batch), "error", err)
		result.Failed += len(batch)
		return
	}
	result.Embedded += len(batch)
}

func (e *Embedder) processOne(ctx context.Context, collection string, post database.PostForEmbedding, text string, result *EmbedResult) {
	vecs, err := e.model.Embed(ctx, []string{text})
	if err != nil {
		e.logger.WarnContext(ctx, "Embedding failed for post",
			"post_id", post.PostID, "error", err)
		result.Failed++
		return
	}
	record := vector.Record{
		PostID:    post.PostID,
		Embedding: vecs[0],
		Payload:   map[string]any{"text": text},
	}
	if err := e.vectors.Upsert(ctx, collection, []vector.Record{record}); err != nil {
		e.logger.WarnContext(ctx, "Upsert failed for post",
			"post_id", post.PostID, "error", err)
		result.Failed++
		return
	}
	result.Embedded++
}

// embeddingText joins a post's own text with its media descriptions.
func embeddingText(post database.PostForEmbedding) string {
	parts := make([]string, 0, 2)
	if post.PostText.Valid && post.PostText.String != "" {
		parts = append(parts, post.PostText.String)
	}
	if post.Descriptions.Valid && post.Descriptions.String != "" {
		parts = append(parts, post.Descriptions.String)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
