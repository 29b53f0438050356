// Package enrich implements the enrichment fan-out: paged description of
// pending media and batched embedding of posts into the vector store.
package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/describe"
)

// DescribeResult summarizes one describe pass.
type DescribeResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Describer runs the description fan-out over an export's pending media.
type Describer struct {
	store    database.Store
	model    describe.ImageDescriber
	pageSize int
	workers  int
	logger   *slog.Logger
}

// NewDescriber creates a describe fan-out. pageSize bounds how many pending
// items are fetched per query; workers bounds in-flight model calls.
func NewDescriber(store database.Store, model describe.ImageDescriber, pageSize, workers int, logger *slog.Logger) *Describer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if workers <= 0 {
		workers = 1
	}
	return &Describer{
		store:    store,
		model:    model,
		pageSize: pageSize,
		workers:  workers,
		logger:   logger.With("component", "describe_fanout"),
	}
}

// Run processes every image still awaiting a description. Pending work is
// whatever the store reports at page-fetch time, so a restarted run resumes
// where the previous one left off. A failed item is logged and left pending;
// it does not abort the page or the run. The pass walks forward in
// fixed-size pages and stops at the first short page, so items that keep
// failing cannot loop it forever.
func (d *Describer) Run(ctx context.Context, exportID int64) (*DescribeResult, error) {
	var processed, failed atomic.Int64

	for page := 0; ; page++ {
		pending, err := d.store.PendingMedia(ctx, exportID, d.pageSize, page*d.pageSize)
		if err != nil {
			return d.result(&processed, &failed), err
		}
		if len(pending) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.workers)
		for _, item := range pending {
			g.Go(func() error {
				if err := d.processOne(gctx, item); err != nil {
					d.logger.WarnContext(gctx, "Media description failed",
						"media_id", item.MediaID, "name", item.Name, "error", err)
					failed.Add(1)
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return d.result(&processed, &failed), err
		}
		if err := ctx.Err(); err != nil {
			return d.result(&processed, &failed), err
		}

		if len(pending) < d.pageSize {
			break
		}
	}

	result := d.result(&processed, &failed)
	d.logger.InfoContext(ctx, "Describe pass finished",
		"export_id", exportID, "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

func (d *Describer) result(processed, failed *atomic.Int64) *DescribeResult {
	return &DescribeResult{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
	}
}

func (d *Describer) processOne(ctx context.Context, item database.PendingMedia) error {
	path := filepath.Join(item.PhotosPath, item.Name)
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image %s: %w", path, err)
	}

	mime := item.MimeType.String
	desc := &database.MediaDescription{MediaID: item.MediaID}

	if r, err := d.model.Describe(ctx, mime, image); err != nil {
		return fmt.Errorf("describe: %w", err)
	} else {
		desc.Description = sql.NullString{String: r.Text, Valid: true}
		desc.DescriptionTime = sql.NullFloat64{Float64: r.Elapsed, Valid: true}
		if r.Usage != "" {
			desc.DescriptionUsage = sql.NullString{String: r.Usage, Valid: true}
		}
	}

	// Tag and structured aspects are best-effort once the description
	// itself succeeded; the item is no longer pending either way.
	if r, err := d.model.Tag(ctx, mime, image); err != nil {
		d.logger.WarnContext(ctx, "Tag generation failed", "media_id", item.MediaID, "error", err)
	} else {
		desc.Tag = sql.NullString{String: r.Text, Valid: true}
		desc.TagTime = sql.NullFloat64{Float64: r.Elapsed, Valid: true}
		if r.Usage != "" {
			desc.TagUsage = sql.NullString{String: r.Usage, Valid: true}
		}
	}

	if r, err := d.model.StructuredDescription(ctx, mime, image); err != nil {
		d.logger.WarnContext(ctx, "Structured description failed", "media_id", item.MediaID, "error", err)
	} else {
		desc.StructuredDescription = sql.NullString{String: r.Text, Valid: true}
		desc.StructuredDescriptionTime = sql.NullFloat64{Float64: r.Elapsed, Valid: true}
		if r.Usage != "" {
			desc.StructuredDescriptionUsage = sql.NullString{String: r.Usage, Valid: true}
		}
	}

	return d.store.UpdateMediaDescription(ctx, desc)
}
