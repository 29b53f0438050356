package pipeline_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmarkelov/archivarius/internal/pipeline"
)

func TestLoadGarbageSpec(t *testing.T) {
	t.Parallel()

	t.Run("full spec", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "garbage.json")
		content := `{"garbage_ids": [1, 2, 3], "garbage_list": ["spam ", "buy now"]}`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write spec: %v", err)
		}

		spec, err := pipeline.LoadGarbageSpec(path)
		if err != nil {
			t.Fatalf("LoadGarbageSpec: %v", err)
		}
		if !spec.HasID(2) {
			t.Error("HasID(2) = false, want true")
		}
		if spec.HasID(4) {
			t.Error("HasID(4) = true, want false")
		}
		if len(spec.Phrases) != 2 || spec.Phrases[0] != "spam " {
			t.Errorf("phrases = %v", spec.Phrases)
		}
	})

	t.Run("empty path means empty spec", func(t *testing.T) {
		t.Parallel()

		spec, err := pipeline.LoadGarbageSpec("")
		if err != nil {
			t.Fatalf("LoadGarbageSpec: %v", err)
		}
		if len(spec.IDs) != 0 || len(spec.Phrases) != 0 {
			t.Errorf("spec = %+v, want empty", spec)
		}
	})

	t.Run("missing file means empty spec", func(t *testing.T) {
		t.Parallel()

		spec, err := pipeline.LoadGarbageSpec(filepath.Join(t.TempDir(), "nope.json"))
		if err != nil {
			t.Fatalf("LoadGarbageSpec: %v", err)
		}
		if spec.HasID(1) {
			t.Error("HasID(1) = true, want false")
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "garbage.json")
		if err := os.WriteFile(path, []byte(`{"garbage_ids": "oops"`), 0o644); err != nil {
			t.Fatalf("write spec: %v", err)
		}

		_, err := pipeline.LoadGarbageSpec(path)
		if !errors.Is(err, pipeline.ErrMalformedInput) {
			t.Fatalf("LoadGarbageSpec err = %v, want ErrMalformedInput", err)
		}
	})
}
