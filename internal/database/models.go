package database

import (
	"database/sql"
	"time"
)

// Export represents one registered Telegram channel archive: where its raw
// JSON dump and media directory live on disk.
type Export struct {
	ID         int64     `db:"id"`
	ChannelID  string    `db:"channel_id"`
	DataPath   string    `db:"data_path"`
	PhotosPath string    `db:"photos_path"`
	CreatedAt  time.Time `db:"created_at"`
}

// Post represents one surviving message from an export. PostID is the
// message's original id and is unique within its export.
type Post struct {
	ID        int64          `db:"id"`
	PostID    int64          `db:"post_id"`
	Date      sql.NullString `db:"date"`
	Edited    sql.NullString `db:"edited"`
	PostText  sql.NullString `db:"post_text"`
	Reactions sql.NullString `db:"reactions"`
	HasMedia  bool           `db:"has_media"`
	ExportID  int64          `db:"export_id"`
	CreatedAt time.Time      `db:"created_at"`
}

// Media represents one photo attachment belonging to a post.
type Media struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	MimeType  sql.NullString `db:"mime_type"`
	PostID    int64          `db:"post_id"`
	CreatedAt time.Time      `db:"created_at"`
}

// MediaDescription holds the three model-generated text fields for one media
// item, each with its own usage metadata and wall-clock timing. Rows are
// created empty at media insertion time; a null description marks pending
// enrichment work.
type MediaDescription struct {
	ID      int64 `db:"id"`
	MediaID int64 `db:"media_id"`

	Description           sql.NullString `db:"description"`
	Tag                   sql.NullString `db:"tag"`
	StructuredDescription sql.NullString `db:"structured_description"`

	DescriptionUsage           sql.NullString `db:"description_usage"`
	TagUsage                   sql.NullString `db:"tag_usage"`
	StructuredDescriptionUsage sql.NullString `db:"structured_description_usage"`

	DescriptionTime           sql.NullFloat64 `db:"description_time"`
	TagTime                   sql.NullFloat64 `db:"tag_time"`
	StructuredDescriptionTime sql.NullFloat64 `db:"structured_description_time"`

	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

// PendingMedia is one media item awaiting description, joined with the
// context the describer needs.
type PendingMedia struct {
	MediaID    int64          `db:"media_id"`
	Name       string         `db:"name"`
	MimeType   sql.NullString `db:"mime_type"`
	PostID     int64          `db:"post_id"`
	ExportID   int64          `db:"export_id"`
	PhotosPath string         `db:"photos_path"`
}

// PostForEmbedding is one post joined with its media descriptions, ready to
// be embedded as a single text.
type PostForEmbedding struct {
	ID           int64          `db:"id"`
	PostID       int64          `db:"post_id"`
	PostText     sql.NullString `db:"post_text"`
	Descriptions sql.NullString `db:"descriptions"`
}

// Job statuses.
const (
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job represents one background task's persisted status record.
type Job struct {
	ID        int64          `db:"id"`
	Status    string         `db:"status"`
	Metadata  sql.NullString `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt sql.NullTime   `db:"updated_at"`
}

// Experiment represents one embedding run over an export, tied to its own
// vector store collection.
type Experiment struct {
	ID             int64          `db:"id"`
	ExportID       sql.NullInt64  `db:"export_id"`
	CollectionName string         `db:"collection_name"`
	MetaData       sql.NullString `db:"meta_data"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}
