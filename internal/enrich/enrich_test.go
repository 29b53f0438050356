package enrich_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/describe"
	"github.com/rmarkelov/archivarius/internal/enrich"
	"github.com/rmarkelov/archivarius/internal/vector"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), time.Hour)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

// fakeDescriber fails any image whose bytes equal a string in failOn.
type fakeDescriber struct {
	failOn map[string]bool
}

func (f *fakeDescriber) describe(image []byte, prefix string) (describe.Result, error) {
	if f.failOn[string(image)] {
		return describe.Result{}, errors.New("model unavailable")
	}
	return describe.Result{Text: prefix + " of " + string(image), Elapsed: 0.1}, nil
}

func (f *fakeDescriber) Describe(_ context.Context, _ string, image []byte) (describe.Result, error) {
	return f.describe(image, "description")
}

func (f *fakeDescriber) Tag(_ context.Context, _ string, image []byte) (describe.Result, error) {
	return f.describe(image, "tag")
}

func (f *fakeDescriber) StructuredDescription(_ context.Context, _ string, image []byte) (describe.Result, error) {
	return f.describe(image, "structure")
}

func addPostWithPhoto(t *testing.T, store database.Store, exportID, postID int64, name string) {
	t.Helper()

	post := &database.Post{PostID: postID, ExportID: exportID}
	media := []database.Media{
		{Name: name, MimeType: sql.NullString{String: "image/jpeg", Valid: true}},
	}
	if err := store.AddPost(context.Background(), post, media); err != nil {
		t.Fatalf("AddPost %d: %v", postID, err)
	}
}

func TestDescriberResumesAfterFailures(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	photosDir := t.TempDir()
	for _, name := range []string{"a.jpg", "bad.jpg"} {
		content := name[:len(name)-len(".jpg")]
		if err := os.WriteFile(filepath.Join(photosDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	export := &database.Export{ChannelID: "resume", DataPath: "d.json", PhotosPath: photosDir}
	if err := store.AddExport(ctx, export); err != nil {
		t.Fatalf("AddExport: %v", err)
	}
	addPostWithPhoto(t, store, export.ID, 1, "a.jpg")
	addPostWithPhoto(t, store, export.ID, 2, "bad.jpg")

	flaky := &fakeDescriber{failOn: map[string]bool{"bad": true}}
	describer := enrich.NewDescriber(store, flaky, 10, 2, nil)

	result, err := describer.Run(ctx, export.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 || result.Failed != 1 {
		t.Fatalf("Run = %+v, want processed 1 failed 1", result)
	}

	pending, err := store.PendingMedia(ctx, export.ID, 10, 0)
	if err != nil {
		t.Fatalf("PendingMedia: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "bad.jpg" {
		t.Fatalf("pending = %+v, want only bad.jpg", pending)
	}

	// A second pass with a healthy model picks up only the failed item.
	healthy := &fakeDescriber{}
	result, err = enrich.NewDescriber(store, healthy, 10, 2, nil).Run(ctx, export.ID)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("second Run = %+v, want processed 1 failed 0", result)
	}

	pending, err = store.PendingMedia(ctx, export.ID, 10, 0)
	if err != nil {
		t.Fatalf("PendingMedia after resume: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after resume = %+v, want none", pending)
	}
}

func TestDescriberMissingFileStaysPending(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	export := &database.Export{ChannelID: "missing", DataPath: "d.json", PhotosPath: t.TempDir()}
	if err := store.AddExport(ctx, export); err != nil {
		t.Fatalf("AddExport: %v", err)
	}
	addPostWithPhoto(t, store, export.ID, 1, "gone.jpg")

	result, err := enrich.NewDescriber(store, &fakeDescriber{}, 10, 1, nil).Run(ctx, export.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 0 || result.Failed != 1 {
		t.Fatalf("Run = %+v, want processed 0 failed 1", result)
	}

	pending, err := store.PendingMedia(ctx, export.ID, 10, 0)
	if err != nil {
		t.Fatalf("PendingMedia: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %+v, want the unreadable item", pending)
	}
}

// fakeEmbedder fails whole batches when batchErr is set, and always fails
// texts listed in failOn.
type fakeEmbedder struct {
	batchErr bool
	failOn   map[string]bool
	calls    int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.batchErr && len(texts) > 1 {
		return nil, errors.New("batch too large")
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn[text] {
			return nil, fmt.Errorf("cannot embed %q", text)
		}
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

// fakeVectorStore records ensured collections and upserted points.
type fakeVectorStore struct {
	collections []string
	records     []vector.Record
}

func (f *fakeVectorStore) EnsureCollection(_ context.Context, collection string) error {
	f.collections = append(f.collections, collection)
	return nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, _ string, records []vector.Record) error {
	f.records = append(f.records, records...)
	return nil
}

func addTextPost(t *testing.T, store database.Store, exportID, postID int64, text string) {
	t.Helper()

	post := &database.Post{PostID: postID, ExportID: exportID}
	if text != "" {
		post.PostText = sql.NullString{String: text, Valid: true}
	}
	if err := store.AddPost(context.Background(), post, nil); err != nil {
		t.Fatalf("AddPost %d: %v", postID, err)
	}
}

func TestEmbedderBatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	export := &database.Export{ChannelID: "embed", DataPath: "d.json"}
	if err := store.AddExport(ctx, export); err != nil {
		t.Fatalf("AddExport: %v", err)
	}
	addTextPost(t, store, export.ID, 1, "first")
	addTextPost(t, store, export.ID, 2, "second")
	addTextPost(t, store, export.ID, 3, "")

	model := &fakeEmbedder{}
	vectors := &fakeVectorStore{}
	embedder := enrich.NewEmbedder(store, model, vectors, 10, nil)

	result, err := embedder.Run(ctx, export.ID, "embed_col")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Embedded != 2 || result.Failed != 0 || result.Skipped != 1 {
		t.Fatalf("Run = %+v, want embedded 2 skipped 1", result)
	}

	if len(vectors.collections) != 1 || vectors.collections[0] != "embed_col" {
		t.Errorf("collections = %v, want [embed_col]", vectors.collections)
	}
	if len(vectors.records) != 2 {
		t.Fatalf("records = %d, want 2", len(vectors.records))
	}
	if vectors.records[0].PostID != 1 || vectors.records[1].PostID != 2 {
		t.Errorf("record post ids = %d, %d", vectors.records[0].PostID, vectors.records[1].PostID)
	}
	if got := vectors.records[0].Payload["text"]; got != "first" {
		t.Errorf("payload text = %v, want %q", got, "first")
	}
	if model.calls != 1 {
		t.Errorf("embed calls = %d, want 1", model.calls)
	}
}

func TestEmbedderFallsBackToSingleItems(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	export := &database.Export{ChannelID: "fallback", DataPath: "d.json"}
	if err := store.AddExport(ctx, export); err != nil {
		t.Fatalf("AddExport: %v", err)
	}
	addTextPost(t, store, export.ID, 1, "good one")
	addTextPost(t, store, export.ID, 2, "poison")
	addTextPost(t, store, export.ID, 3, "good two")

	model := &fakeEmbedder{batchErr: true, failOn: map[string]bool{"poison": true}}
	vectors := &fakeVectorStore{}
	embedder := enrich.NewEmbedder(store, model, vectors, 10, nil)

	result, err := embedder.Run(ctx, export.ID, "fallback_col")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Embedded != 2 || result.Failed != 1 || result.Skipped != 0 {
		t.Fatalf("Run = %+v, want embedded 2 failed 1", result)
	}
	if len(vectors.records) != 2 {
		t.Fatalf("records = %d, want 2", len(vectors.records))
	}
	if vectors.records[0].PostID != 1 || vectors.records[1].PostID != 3 {
		t.Errorf("record post ids = %d, %d, want 1, 3", vectors.records[0].PostID, vectors.records[1].PostID)
	}
	// One failed batch call plus one call per item.
	if model.calls != 4 {
		t.Errorf("embed calls = %d, want 4", model.calls)
	}
}

func TestEmbedderCombinesTextAndDescriptions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	export := &database.Export{ChannelID: "combine", DataPath: "d.json"}
	if err := store.AddExport(ctx, export); err != nil {
		t.Fatalf("AddExport: %v", err)
	}

	post := &database.Post{
		PostID:   1,
		PostText: sql.NullString{String: "caption", Valid: true},
		ExportID: export.ID,
	}
	media := []database.Media{
		{Name: "p.jpg", MimeType: sql.NullString{String: "image/jpeg", Valid: true}},
	}
	if err := store.AddPost(ctx, post, media); err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	desc := &database.MediaDescription{
		MediaID:     media[0].ID,
		Description: sql.NullString{String: "a sunset", Valid: true},
	}
	if err := store.UpdateMediaDescription(ctx, desc); err != nil {
		t.Fatalf("UpdateMediaDescription: %v", err)
	}

	vectors := &fakeVectorStore{}
	result, err := enrich.NewEmbedder(store, &fakeEmbedder{}, vectors, 10, nil).Run(ctx, export.ID, "combine_col")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Embedded != 1 {
		t.Fatalf("Run = %+v, want embedded 1", result)
	}
	if got := vectors.records[0].Payload["text"]; got != "caption a sunset" {
		t.Errorf("payload text = %v, want %q", got, "caption a sunset")
	}
}
