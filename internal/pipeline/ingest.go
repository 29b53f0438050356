package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/telegram"
)

// messagesKey is the array holding records in a raw export document.
const messagesKey = "messages"

// FilteredArtifactName is the hand-off file written after a filtering pass.
const FilteredArtifactName = "filtered_telegram_data.json"

// Result summarizes one ingestion pass.
type Result struct {
	Total   int      `json:"total"`
	Stored  int      `json:"stored"`
	Skipped int      `json:"skipped"`
	Dropped int      `json:"dropped"`
	Invalid int      `json:"invalid"`
	Report  []string `json:"ngram_report"`
}

// Ingestor runs the full ingestion pass over one export: stream, normalize,
// filter, persist, and write the filtered snapshot artifact.
type Ingestor struct {
	store       database.Store
	artifactDir string
	wordOffset  int
	logger      *slog.Logger
}

// NewIngestor creates an ingestor. wordOffset is the n-gram window width
// used for the boilerplate report.
func NewIngestor(store database.Store, artifactDir string, wordOffset int, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingestor{
		store:       store,
		artifactDir: artifactDir,
		wordOffset:  wordOffset,
		logger:      logger.With("component", "ingestor"),
	}
}

// Run executes one sequential pass over the export's raw dump. Individual
// record failures are skipped; already-stored posts are skipped; a syntax
// error in the dump aborts the pass but keeps everything persisted so far.
// exceptions are n-gram keys excluded from the boilerplate report.
func (in *Ingestor) Run(ctx context.Context, export *database.Export, garbageSpecPath string, exceptions []string) (*Result, error) {
	spec, err := LoadGarbageSpec(garbageSpecPath)
	if err != nil {
		return nil, err
	}

	total, err := Count(export.DataPath, messagesKey)
	if err != nil {
		return nil, err
	}

	in.logger.InfoContext(ctx, "Starting ingestion pass",
		"export_id", export.ID,
		"data_path", export.DataPath,
		"total_records", total,
		"garbage_ids", len(spec.IDs),
		"garbage_phrases", len(spec.Phrases))

	filter := NewFilter(spec, in.wordOffset)
	result := &Result{Total: total}
	var filtered []ParsedRecord

	err = ForEach(export.DataPath, messagesKey, func(raw map[string]any) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := telegram.Normalize(raw)
		if err != nil {
			result.Invalid++
			in.logger.WarnContext(ctx, "Skipping invalid record", "error", err)
			return nil
		}
		if msg == nil {
			return nil
		}

		rec := filter.Apply(msg)
		if rec == nil {
			result.Dropped++
			return nil
		}
		filtered = append(filtered, *rec)

		if err := in.persist(ctx, export.ID, msg, rec); err != nil {
			if errors.Is(err, database.ErrAlreadyExists) {
				result.Skipped++
				return nil
			}
			return err
		}
		result.Stored++
		return nil
	})
	if err != nil {
		// Records persisted before the failure point stand.
		return result, err
	}

	if err := in.writeArtifact(ctx, export, filtered); err != nil {
		return result, err
	}

	result.Report = filter.NGrams().Report(exceptions)

	in.logger.InfoContext(ctx, "Ingestion pass finished",
		"export_id", export.ID,
		"total", result.Total,
		"stored", result.Stored,
		"skipped", result.Skipped,
		"dropped", result.Dropped,
		"invalid", result.Invalid)
	return result, nil
}

func (in *Ingestor) persist(ctx context.Context, exportID int64, msg *telegram.NormalizedMessage, rec *ParsedRecord) error {
	post := &database.Post{
		PostID:   rec.ID,
		ExportID: exportID,
	}
	if rec.Date != "" {
		post.Date = sql.NullString{String: rec.Date, Valid: true}
	}
	if msg.Edited != "" {
		post.Edited = sql.NullString{String: msg.Edited, Valid: true}
	}
	if rec.Text != "" {
		post.PostText = sql.NullString{String: rec.Text, Valid: true}
	}
	if len(msg.Reactions) > 0 {
		post.Reactions = sql.NullString{String: string(msg.Reactions), Valid: true}
	}

	var media []database.Media
	if rec.Photo != "" {
		m := database.Media{Name: rec.Photo}
		if msg.MimeType != "" {
			m.MimeType = sql.NullString{String: msg.MimeType, Valid: true}
		}
		media = append(media, m)
	}

	return in.store.AddPost(ctx, post, media)
}

// writeArtifact writes the filtered snapshot atomically: the full array goes
// to a temp file first, then replaces the target in one rename.
func (in *Ingestor) writeArtifact(ctx context.Context, export *database.Export, records []ParsedRecord) error {
	if records == nil {
		records = []ParsedRecord{}
	}

	dir := filepath.Join(in.artifactDir, export.ChannelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode filtered records: %w", err)
	}

	tmp, err := os.CreateTemp(dir, FilteredArtifactName+".*")
	if err != nil {
		return fmt.Errorf("create artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}

	target := filepath.Join(dir, FilteredArtifactName)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish artifact: %w", err)
	}

	in.logger.InfoContext(ctx, "Filtered snapshot written", "path", target, "records", len(records))
	return nil
}
