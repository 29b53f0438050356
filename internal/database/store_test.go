package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmarkelov/archivarius/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(dbPath, time.Hour)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func addTestExport(t *testing.T, store database.Store, channelID string) *database.Export {
	t.Helper()

	export := &database.Export{
		ChannelID:  channelID,
		DataPath:   "/data/" + channelID + ".json",
		PhotosPath: "/data/" + channelID + "_photos",
	}
	if err := store.AddExport(context.Background(), export); err != nil {
		t.Fatalf("AddExport: %v", err)
	}
	if export.ID == 0 {
		t.Fatal("AddExport did not set export ID")
	}
	return export
}

func TestAddExportDuplicateChannel(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	addTestExport(t, store, "channel_a")

	dup := &database.Export{ChannelID: "channel_a", DataPath: "other.json"}
	err := store.AddExport(ctx, dup)
	if !errors.Is(err, database.ErrAlreadyExists) {
		t.Fatalf("AddExport duplicate err = %v, want ErrAlreadyExists", err)
	}

	exports, err := store.ListExports(ctx)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(exports) != 1 {
		t.Errorf("exports = %d, want 1", len(exports))
	}
}

func TestGetExportNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	export, err := store.GetExport(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetExport: %v", err)
	}
	if export != nil {
		t.Errorf("GetExport = %+v, want nil", export)
	}
}

func TestAddPostIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	export := addTestExport(t, store, "channel_posts")

	post := &database.Post{
		PostID:   101,
		Date:     sql.NullString{String: "2024-01-01T00:00:00", Valid: true},
		PostText: sql.NullString{String: "hello", Valid: true},
		ExportID: export.ID,
	}
	media := []database.Media{
		{Name: "pic.jpg", MimeType: sql.NullString{String: "image/jpeg", Valid: true}},
	}

	if err := store.AddPost(ctx, post, media); err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if post.ID == 0 {
		t.Fatal("AddPost did not set post ID")
	}
	if media[0].ID == 0 {
		t.Fatal("AddPost did not set media ID")
	}

	// Same post_id in the same export: skipped, nothing written.
	repeat := &database.Post{
		PostID:   101,
		PostText: sql.NullString{String: "changed", Valid: true},
		ExportID: export.ID,
	}
	err := store.AddPost(ctx, repeat, nil)
	if !errors.Is(err, database.ErrAlreadyExists) {
		t.Fatalf("AddPost repeat err = %v, want ErrAlreadyExists", err)
	}

	count, err := store.CountPosts(ctx, export.ID)
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if count != 1 {
		t.Errorf("CountPosts = %d, want 1", count)
	}

	// Same post_id under a different export is a distinct post.
	other := addTestExport(t, store, "channel_other")
	if err := store.AddPost(ctx, &database.Post{PostID: 101, ExportID: other.ID}, nil); err != nil {
		t.Fatalf("AddPost other export: %v", err)
	}
}

func TestPendingMediaResume(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	export := addTestExport(t, store, "channel_pending")

	postA := &database.Post{PostID: 1, ExportID: export.ID}
	mediaA := []database.Media{{Name: "a.jpg", MimeType: sql.NullString{String: "image/jpeg", Valid: true}}}
	if err := store.AddPost(ctx, postA, mediaA); err != nil {
		t.Fatalf("AddPost a: %v", err)
	}

	postB := &database.Post{PostID: 2, ExportID: export.ID}
	mediaB := []database.Media{{Name: "b.png", MimeType: sql.NullString{String: "image/png", Valid: true}}}
	if err := store.AddPost(ctx, postB, mediaB); err != nil {
		t.Fatalf("AddPost b: %v", err)
	}

	// Non-image media never shows up as pending.
	postC := &database.Post{PostID: 3, ExportID: export.ID}
	mediaC := []database.Media{{Name: "c.mp4", MimeType: sql.NullString{String: "video/mp4", Valid: true}}}
	if err := store.AddPost(ctx, postC, mediaC); err != nil {
		t.Fatalf("AddPost c: %v", err)
	}

	pending, err := store.PendingMedia(ctx, export.ID, 50, 0)
	if err != nil {
		t.Fatalf("PendingMedia: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Name != "a.jpg" || pending[1].Name != "b.png" {
		t.Errorf("pending names = %q, %q", pending[0].Name, pending[1].Name)
	}
	if pending[0].PhotosPath != export.PhotosPath {
		t.Errorf("photos_path = %q, want %q", pending[0].PhotosPath, export.PhotosPath)
	}

	// Describing one item removes it from the pending set.
	desc := &database.MediaDescription{
		MediaID:     mediaA[0].ID,
		Description: sql.NullString{String: "a cat", Valid: true},
	}
	if err := store.UpdateMediaDescription(ctx, desc); err != nil {
		t.Fatalf("UpdateMediaDescription: %v", err)
	}

	pending, err = store.PendingMedia(ctx, export.ID, 50, 0)
	if err != nil {
		t.Fatalf("PendingMedia after update: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "b.png" {
		t.Fatalf("pending after update = %+v, want only b.png", pending)
	}
}

func TestUpdateMediaDescriptionUpsert(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	export := addTestExport(t, store, "channel_upsert")

	post := &database.Post{PostID: 1, ExportID: export.ID}
	media := []database.Media{{Name: "x.jpg", MimeType: sql.NullString{String: "image/jpeg", Valid: true}}}
	if err := store.AddPost(ctx, post, media); err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	first := &database.MediaDescription{
		MediaID:         media[0].ID,
		Description:     sql.NullString{String: "first", Valid: true},
		DescriptionTime: sql.NullFloat64{Float64: 1.5, Valid: true},
	}
	if err := store.UpdateMediaDescription(ctx, first); err != nil {
		t.Fatalf("UpdateMediaDescription first: %v", err)
	}

	second := &database.MediaDescription{
		MediaID:     media[0].ID,
		Description: sql.NullString{String: "second", Valid: true},
		Tag:         sql.NullString{String: "cat", Valid: true},
	}
	if err := store.UpdateMediaDescription(ctx, second); err != nil {
		t.Fatalf("UpdateMediaDescription second: %v", err)
	}

	posts, err := store.PostsForEmbedding(ctx, export.ID, 10, 0)
	if err != nil {
		t.Fatalf("PostsForEmbedding: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if posts[0].Descriptions.String != "second" {
		t.Errorf("descriptions = %q, want %q", posts[0].Descriptions.String, "second")
	}
}

func TestPostsForEmbeddingJoin(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	export := addTestExport(t, store, "channel_embed")

	textOnly := &database.Post{
		PostID:   1,
		PostText: sql.NullString{String: "just text", Valid: true},
		ExportID: export.ID,
	}
	if err := store.AddPost(ctx, textOnly, nil); err != nil {
		t.Fatalf("AddPost text: %v", err)
	}

	withMedia := &database.Post{
		PostID:   2,
		PostText: sql.NullString{String: "with photo", Valid: true},
		ExportID: export.ID,
	}
	media := []database.Media{{Name: "p.jpg", MimeType: sql.NullString{String: "image/jpeg", Valid: true}}}
	if err := store.AddPost(ctx, withMedia, media); err != nil {
		t.Fatalf("AddPost media: %v", err)
	}
	desc := &database.MediaDescription{
		MediaID:     media[0].ID,
		Description: sql.NullString{String: "a dog", Valid: true},
	}
	if err := store.UpdateMediaDescription(ctx, desc); err != nil {
		t.Fatalf("UpdateMediaDescription: %v", err)
	}

	posts, err := store.PostsForEmbedding(ctx, export.ID, 10, 0)
	if err != nil {
		t.Fatalf("PostsForEmbedding: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
	if posts[0].Descriptions.Valid {
		t.Errorf("text-only post descriptions = %q, want null", posts[0].Descriptions.String)
	}
	if posts[1].Descriptions.String != "a dog" {
		t.Errorf("descriptions = %q, want %q", posts[1].Descriptions.String, "a dog")
	}
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.CreateJob(ctx, `{"operation":"ingest"}`)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("CreateJob did not set job ID")
	}
	if job.Status != database.JobPending {
		t.Errorf("status = %q, want %q", job.Status, database.JobPending)
	}

	for _, status := range []string{database.JobInProgress, database.JobCompleted} {
		if err := store.UpdateJobStatus(ctx, job.ID, status); err != nil {
			t.Fatalf("UpdateJobStatus(%s): %v", status, err)
		}
		got, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Status != status {
			t.Errorf("status = %q, want %q", got.Status, status)
		}
	}

	if err := store.UpdateJobStatus(ctx, 999, database.JobFailed); err == nil {
		t.Error("UpdateJobStatus on missing job succeeded, want error")
	}

	missing, err := store.GetJob(ctx, 999)
	if err != nil {
		t.Fatalf("GetJob missing: %v", err)
	}
	if missing != nil {
		t.Errorf("GetJob missing = %+v, want nil", missing)
	}

	jobs, err := store.ListJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(jobs))
	}
}

func TestExperiments(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	export := addTestExport(t, store, "channel_exp")

	experiment := &database.Experiment{
		ExportID:       sql.NullInt64{Int64: export.ID, Valid: true},
		CollectionName: "channel_exp_1",
		MetaData:       sql.NullString{String: `{"model":"test"}`, Valid: true},
	}
	if err := store.AddExperiment(ctx, experiment); err != nil {
		t.Fatalf("AddExperiment: %v", err)
	}
	if experiment.ID == 0 {
		t.Fatal("AddExperiment did not set experiment ID")
	}

	got, err := store.GetExperiment(ctx, experiment.ID)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if got == nil || got.CollectionName != "channel_exp_1" {
		t.Fatalf("GetExperiment = %+v", got)
	}

	missing, err := store.GetExperiment(ctx, 999)
	if err != nil {
		t.Fatalf("GetExperiment missing: %v", err)
	}
	if missing != nil {
		t.Errorf("GetExperiment missing = %+v, want nil", missing)
	}

	all, err := store.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("experiments = %d, want 1", len(all))
	}

	if err := store.DeleteExperiment(ctx, experiment.ID); err != nil {
		t.Fatalf("DeleteExperiment: %v", err)
	}
	if err := store.DeleteExperiment(ctx, experiment.ID); err == nil {
		t.Error("DeleteExperiment on missing row succeeded, want error")
	}
	gone, err := store.GetExperiment(ctx, experiment.ID)
	if err != nil {
		t.Fatalf("GetExperiment after delete: %v", err)
	}
	if gone != nil {
		t.Errorf("GetExperiment after delete = %+v, want nil", gone)
	}
}
