package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrAlreadyExists is returned when an insert collides with an existing row.
// Ingestion treats this as "skip", not as a failure, so re-running a pass
// over a previously processed export is safe.
var ErrAlreadyExists = errors.New("already exists")

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// AddExport registers a new export. Returns ErrAlreadyExists when the
	// channel is already registered.
	AddExport(ctx context.Context, export *Export) error

	// GetExport retrieves an export by ID. Returns nil, nil if not found.
	GetExport(ctx context.Context, id int64) (*Export, error)

	// ListExports retrieves all registered exports.
	ListExports(ctx context.Context) ([]Export, error)

	// AddPost inserts one post plus its media rows and their empty
	// description rows as a single transaction. A post_id collision within
	// the same export returns ErrAlreadyExists with nothing written.
	AddPost(ctx context.Context, post *Post, media []Media) error

	// CountPosts returns the number of posts stored for an export.
	CountPosts(ctx context.Context, exportID int64) (int, error)

	// PendingMedia retrieves one page of image media still awaiting a
	// description, joined with the context the describer needs.
	PendingMedia(ctx context.Context, exportID int64, limit, offset int) ([]PendingMedia, error)

	// UpdateMediaDescription upserts the description fields for one media
	// item. Repeating an update with the same media ID is safe.
	UpdateMediaDescription(ctx context.Context, desc *MediaDescription) error

	// PostsForEmbedding retrieves one page of posts joined with their media
	// descriptions, for embedding.
	PostsForEmbedding(ctx context.Context, exportID int64, limit, offset int) ([]PostForEmbedding, error)

	// CreateJob inserts a new pending job record and sets its ID.
	CreateJob(ctx context.Context, metadata string) (*Job, error)

	// UpdateJobStatus transitions a job to the given status.
	UpdateJobStatus(ctx context.Context, id int64, status string) error

	// GetJob retrieves a job by ID. Returns nil, nil if not found.
	GetJob(ctx context.Context, id int64) (*Job, error)

	// ListJobs retrieves the most recent jobs, newest first.
	ListJobs(ctx context.Context, limit int) ([]Job, error)

	// AddExperiment registers a new embedding experiment and sets its ID.
	AddExperiment(ctx context.Context, experiment *Experiment) error

	// GetExperiment retrieves an experiment by ID. Returns nil, nil if not found.
	GetExperiment(ctx context.Context, id int64) (*Experiment, error)

	// ListExperiments retrieves all experiments.
	ListExperiments(ctx context.Context) ([]Experiment, error)

	// DeleteExperiment removes an experiment record.
	DeleteExperiment(ctx context.Context, id int64) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddExport registers a new export.
func (s *sqlxStore) AddExport(ctx context.Context, export *Export) error {
	if export == nil {
		return fmt.Errorf("cannot save nil export")
	}
	if export.ChannelID == "" {
		return fmt.Errorf("export must have a non-empty channel_id")
	}

	export.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO tg_exports (channel_id, data_path, photos_path, created_at)
        VALUES (:channel_id, :data_path, :photos_path, :created_at)
        ON CONFLICT (channel_id) DO NOTHING;
    `
	result, err := s.db.NamedExecContext(ctx, query, export)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving export", "channel_id", export.ChannelID, "error", err)
		return fmt.Errorf("failed to save export %s: %w", export.ChannelID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		s.logger.DebugContext(ctx, "Export already registered", "channel_id", export.ChannelID)
		return fmt.Errorf("export %s: %w", export.ChannelID, ErrAlreadyExists)
	}

	if id, err := result.LastInsertId(); err == nil {
		export.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving export",
			"channel_id", export.ChannelID, "error", err)
	}

	s.logger.DebugContext(ctx, "Export saved successfully",
		"channel_id", export.ChannelID, "export_id", export.ID)
	return nil
}

// GetExport retrieves an export by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetExport(ctx context.Context, id int64) (*Export, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var export Export
	query := `SELECT id, channel_id, data_path, photos_path, created_at FROM tg_exports WHERE id = ?`

	err := s.db.GetContext(ctx, &export, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No export found", "export_id", id)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting export", "export_id", id, "error", err)
		return nil, fmt.Errorf("failed to get export %d: %w", id, err)
	}

	return &export, nil
}

// ListExports retrieves all registered exports.
func (s *sqlxStore) ListExports(ctx context.Context) ([]Export, error) {
	var exports []Export
	query := `SELECT id, channel_id, data_path, photos_path, created_at FROM tg_exports ORDER BY id`

	if err := s.db.SelectContext(ctx, &exports, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing exports", "error", err)
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	return exports, nil
}

// AddPost inserts one post plus its media rows and their empty description
// rows. All rows for the message are written atomically, or none are.
func (s *sqlxStore) AddPost(ctx context.Context, post *Post, media []Media) error {
	if post == nil {
		return fmt.Errorf("cannot save nil post")
	}
	if post.ExportID == 0 {
		return fmt.Errorf("post must have a non-zero export_id")
	}

	now := time.Now().UTC()
	post.CreatedAt = now
	post.HasMedia = len(media) > 0

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving post",
			"post_id", post.PostID, "export_id", post.ExportID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	postQuery := `
        INSERT INTO posts (post_id, date, edited, post_text, reactions, has_media, export_id, created_at)
        VALUES (:post_id, :date, :edited, :post_text, :reactions, :has_media, :export_id, :created_at)
        ON CONFLICT (export_id, post_id) DO NOTHING;
    `
	result, err := tx.NamedExecContext(ctx, postQuery, post)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving post",
			"post_id", post.PostID, "export_id", post.ExportID, "error", err)
		return fmt.Errorf("failed to save post %d: %w", post.PostID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		s.logger.DebugContext(ctx, "Post already stored, skipping",
			"post_id", post.PostID, "export_id", post.ExportID)
		return fmt.Errorf("post %d: %w", post.PostID, ErrAlreadyExists)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get post row id: %w", err)
	}
	post.ID = rowID

	for i := range media {
		media[i].PostID = rowID
		media[i].CreatedAt = now

		mediaResult, err := tx.NamedExecContext(ctx, `
            INSERT INTO media (name, mime_type, post_id, created_at)
            VALUES (:name, :mime_type, :post_id, :created_at);
        `, &media[i])
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving media",
				"post_id", post.PostID, "name", media[i].Name, "error", err)
			return fmt.Errorf("failed to save media %s: %w", media[i].Name, err)
		}

		mediaID, err := mediaResult.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get media row id: %w", err)
		}
		media[i].ID = mediaID

		// Pre-create the empty description row; a null description marks
		// the item as pending enrichment work.
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO media_descriptions (media_id, created_at) VALUES (?, ?);
        `, mediaID, now); err != nil {
			s.logger.ErrorContext(ctx, "Error creating media description stub",
				"media_id", mediaID, "error", err)
			return fmt.Errorf("failed to create description stub for media %d: %w", mediaID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction",
			"post_id", post.PostID, "export_id", post.ExportID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Post saved successfully",
		"post_id", post.PostID, "export_id", post.ExportID, "media_count", len(media))
	return nil
}

// CountPosts returns the number of posts stored for an export.
func (s *sqlxStore) CountPosts(ctx context.Context, exportID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM posts WHERE export_id = ?`, exportID)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts for export %d: %w", exportID, err)
	}
	return count, nil
}

// PendingMedia retrieves one page of image media still awaiting a description.
func (s *sqlxStore) PendingMedia(ctx context.Context, exportID int64, limit, offset int) ([]PendingMedia, error) {
	if limit <= 0 {
		limit = 50
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var pending []PendingMedia
	query := `
        SELECT m.id AS media_id, m.name, m.mime_type, p.post_id, p.export_id, e.photos_path
        FROM media m
        JOIN media_descriptions md ON md.media_id = m.id
        JOIN posts p ON p.id = m.post_id
        JOIN tg_exports e ON e.id = p.export_id
        WHERE p.export_id = ?
          AND md.description IS NULL
          AND m.mime_type LIKE 'image/%'
        ORDER BY m.id
        LIMIT ? OFFSET ?;
    `

	err := s.db.SelectContext(ctx, &pending, query, exportID, limit, offset)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching pending media",
			"export_id", exportID, "limit", limit, "offset", offset, "error", err)
		return nil, fmt.Errorf("failed to fetch pending media for export %d: %w", exportID, err)
	}

	s.logger.DebugContext(ctx, "Fetched pending media",
		"export_id", exportID, "count", len(pending), "offset", offset)
	return pending, nil
}

// UpdateMediaDescription upserts the description fields for one media item.
func (s *sqlxStore) UpdateMediaDescription(ctx context.Context, desc *MediaDescription) error {
	if desc == nil {
		return fmt.Errorf("cannot save nil media description")
	}
	if desc.MediaID == 0 {
		return fmt.Errorf("media description must have a non-zero media_id")
	}

	now := time.Now().UTC()
	desc.CreatedAt = now
	desc.UpdatedAt = sql.NullTime{Time: now, Valid: true}

	query := `
        INSERT INTO media_descriptions (
            media_id, description, tag, structured_description,
            description_usage, tag_usage, structured_description_usage,
            description_time, tag_time, structured_description_time,
            created_at, updated_at
        ) VALUES (
            :media_id, :description, :tag, :structured_description,
            :description_usage, :tag_usage, :structured_description_usage,
            :description_time, :tag_time, :structured_description_time,
            :created_at, :updated_at
        )
        ON CONFLICT (media_id) DO UPDATE SET
            description = excluded.description,
            tag = excluded.tag,
            structured_description = excluded.structured_description,
            description_usage = excluded.description_usage,
            tag_usage = excluded.tag_usage,
            structured_description_usage = excluded.structured_description_usage,
            description_time = excluded.description_time,
            tag_time = excluded.tag_time,
            structured_description_time = excluded.structured_description_time,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, desc); err != nil {
		s.logger.ErrorContext(ctx, "Error saving media description",
			"media_id", desc.MediaID, "error", err)
		return fmt.Errorf("failed to save description for media %d: %w", desc.MediaID, err)
	}

	s.logger.DebugContext(ctx, "Media description saved successfully", "media_id", desc.MediaID)
	return nil
}

// PostsForEmbedding retrieves one page of posts joined with their media
// descriptions, ordered by row id for stable paging.
func (s *sqlxStore) PostsForEmbedding(ctx context.Context, exportID int64, limit, offset int) ([]PostForEmbedding, error) {
	if limit <= 0 {
		limit = 128
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var posts []PostForEmbedding
	query := `
        SELECT p.id, p.post_id, p.post_text,
               (SELECT GROUP_CONCAT(md.description, ' ')
                FROM media m
                JOIN media_descriptions md ON md.media_id = m.id
                WHERE m.post_id = p.id AND md.description IS NOT NULL) AS descriptions
        FROM posts p
        WHERE p.export_id = ?
        ORDER BY p.id
        LIMIT ? OFFSET ?;
    `

	err := s.db.SelectContext(ctx, &posts, query, exportID, limit, offset)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching posts for embedding",
			"export_id", exportID, "limit", limit, "offset", offset, "error", err)
		return nil, fmt.Errorf("failed to fetch posts for export %d: %w", exportID, err)
	}
	return posts, nil
}

// CreateJob inserts a new pending job record.
func (s *sqlxStore) CreateJob(ctx context.Context, metadata string) (*Job, error) {
	job := &Job{
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != "" {
		job.Metadata = sql.NullString{String: metadata, Valid: true}
	}

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO jobs (status, metadata, created_at) VALUES (:status, :metadata, :created_at);
    `, job)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating job", "error", err)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get job id: %w", err)
	}
	job.ID = id

	s.logger.DebugContext(ctx, "Job created", "job_id", job.ID)
	return job, nil
}

// UpdateJobStatus transitions a job to the given status.
func (s *sqlxStore) UpdateJobStatus(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx, `
        UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?;
    `, status, time.Now().UTC(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating job status",
			"job_id", id, "status", status, "error", err)
		return fmt.Errorf("failed to update job %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("job %d not found", id)
	}

	s.logger.DebugContext(ctx, "Job status updated", "job_id", id, "status", status)
	return nil
}

// GetJob retrieves a job by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetJob(ctx context.Context, id int64) (*Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job, `
        SELECT id, status, metadata, created_at, updated_at FROM jobs WHERE id = ?;
    `, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting job", "job_id", id, "error", err)
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return &job, nil
}

// ListJobs retrieves the most recent jobs, newest first.
func (s *sqlxStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}

	var jobs []Job
	err := s.db.SelectContext(ctx, &jobs, `
        SELECT id, status, metadata, created_at, updated_at
        FROM jobs ORDER BY id DESC LIMIT ?;
    `, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing jobs", "error", err)
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// AddExperiment registers a new embedding experiment.
func (s *sqlxStore) AddExperiment(ctx context.Context, experiment *Experiment) error {
	if experiment == nil {
		return fmt.Errorf("cannot save nil experiment")
	}
	if experiment.CollectionName == "" {
		return fmt.Errorf("experiment must have a non-empty collection_name")
	}

	experiment.CreatedAt = time.Now().UTC()

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO experiments (export_id, collection_name, meta_data, created_at)
        VALUES (:export_id, :collection_name, :meta_data, :created_at);
    `, experiment)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving experiment",
			"collection", experiment.CollectionName, "error", err)
		return fmt.Errorf("failed to save experiment %s: %w", experiment.CollectionName, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		experiment.ID = id
	}

	s.logger.DebugContext(ctx, "Experiment saved",
		"experiment_id", experiment.ID, "collection", experiment.CollectionName)
	return nil
}

// GetExperiment retrieves an experiment by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	var experiment Experiment
	err := s.db.GetContext(ctx, &experiment, `
        SELECT id, export_id, collection_name, meta_data, created_at, updated_at
        FROM experiments WHERE id = ?;
    `, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting experiment", "experiment_id", id, "error", err)
		return nil, fmt.Errorf("failed to get experiment %d: %w", id, err)
	}
	return &experiment, nil
}

// ListExperiments retrieves all experiments.
func (s *sqlxStore) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var experiments []Experiment
	err := s.db.SelectContext(ctx, &experiments, `
        SELECT id, export_id, collection_name, meta_data, created_at, updated_at
        FROM experiments ORDER BY id;
    `)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing experiments", "error", err)
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return experiments, nil
}

// DeleteExperiment removes an experiment record.
func (s *sqlxStore) DeleteExperiment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?;`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting experiment", "experiment_id", id, "error", err)
		return fmt.Errorf("failed to delete experiment %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("experiment %d not found", id)
	}

	s.logger.DebugContext(ctx, "Experiment deleted", "experiment_id", id)
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		s.logger.WarnContext(ctx, "Failed to set busy timeout", "error", err)
	}

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
