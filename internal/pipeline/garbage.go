package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// GarbageSpec lists curator-supplied noise to exclude: message ids dropped
// outright and literal phrases stripped from surviving text. Loaded once per
// run and immutable for its duration.
type GarbageSpec struct {
	IDs     map[int64]struct{}
	Phrases []string
}

// HasID reports whether id is marked as garbage.
func (s *GarbageSpec) HasID(id int64) bool {
	_, ok := s.IDs[id]
	return ok
}

// LoadGarbageSpec reads a garbage configuration artifact. A missing file
// means empty filter sets, not an error.
func LoadGarbageSpec(path string) (*GarbageSpec, error) {
	spec := &GarbageSpec{IDs: map[int64]struct{}{}}
	if path == "" {
		return spec, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return spec, nil
		}
		return nil, fmt.Errorf("read garbage spec %s: %w", path, err)
	}

	var raw struct {
		GarbageIDs  []int64  `json:"garbage_ids"`
		GarbageList []string `json:"garbage_list"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: garbage spec %s: %v", ErrMalformedInput, path, err)
	}

	for _, id := range raw.GarbageIDs {
		spec.IDs[id] = struct{}{}
	}
	spec.Phrases = raw.GarbageList
	return spec, nil
}
