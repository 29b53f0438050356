package telegram_test

import (
	"errors"
	"testing"

	"github.com/rmarkelov/archivarius/internal/telegram"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    map[string]any
		expected *telegram.NormalizedMessage
		wantErr  bool
	}{
		{
			name: "entity texts concatenated in order",
			input: map[string]any{
				"type": "message",
				"id":   float64(1),
				"date": "2024-01-01T00:00:00",
				"text_entities": []any{
					map[string]any{"type": "plain", "text": "A"},
					map[string]any{"type": "bold", "text": "B"},
					map[string]any{"type": "link", "text": "C", "href": "https://example.com"},
				},
			},
			expected: &telegram.NormalizedMessage{
				ID:   1,
				Date: "2024-01-01T00:00:00",
				TextEntities: []telegram.TextEntity{
					{Type: "plain", Text: "A"},
					{Type: "bold", Text: "B"},
					{Type: "link", Text: "C", Href: "https://example.com"},
				},
			},
		},
		{
			name: "service record skipped without error",
			input: map[string]any{
				"type": "service",
				"id":   float64(2),
				"date": "2024-01-01T00:00:00",
			},
			expected: nil,
		},
		{
			name: "missing id fails validation",
			input: map[string]any{
				"type": "message",
				"date": "2024-01-01T00:00:00",
			},
			wantErr: true,
		},
		{
			name: "fractional id fails validation",
			input: map[string]any{
				"type": "message",
				"id":   float64(1.5),
				"date": "2024-01-01T00:00:00",
			},
			wantErr: true,
		},
		{
			name: "missing date fails validation",
			input: map[string]any{
				"type": "message",
				"id":   float64(3),
			},
			wantErr: true,
		},
		{
			name: "explicit mime type preserved",
			input: map[string]any{
				"type":      "message",
				"id":        float64(4),
				"date":      "2024-01-01T00:00:00",
				"photo":     "photos/pic.dat",
				"mime_type": "image/png",
			},
			expected: &telegram.NormalizedMessage{
				ID:       4,
				Date:     "2024-01-01T00:00:00",
				Photo:    "photos/pic.dat",
				MimeType: "image/png",
			},
		},
		{
			name: "mime type inferred from extension",
			input: map[string]any{
				"type":  "message",
				"id":    float64(5),
				"date":  "2024-01-01T00:00:00",
				"photo": "photos/pic.JPG",
			},
			expected: &telegram.NormalizedMessage{
				ID:       5,
				Date:     "2024-01-01T00:00:00",
				Photo:    "photos/pic.JPG",
				MimeType: "image/jpeg",
			},
		},
		{
			name: "unknown extension leaves mime type empty",
			input: map[string]any{
				"type":  "message",
				"id":    float64(6),
				"date":  "2024-01-01T00:00:00",
				"photo": "photos/pic.tiff",
			},
			expected: &telegram.NormalizedMessage{
				ID:    6,
				Date:  "2024-01-01T00:00:00",
				Photo: "photos/pic.tiff",
			},
		},
		{
			name: "malformed entity fails validation",
			input: map[string]any{
				"type": "message",
				"id":   float64(7),
				"date": "2024-01-01T00:00:00",
				"text_entities": []any{
					map[string]any{"type": "plain"},
				},
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := telegram.Normalize(tc.input)

			if tc.wantErr {
				if !errors.Is(err, telegram.ErrValidation) {
					t.Fatalf("Normalize err = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize err = %v", err)
			}
			if tc.expected == nil {
				if got != nil {
					t.Fatalf("Normalize = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Normalize = nil, want %+v", tc.expected)
			}
			if got.ID != tc.expected.ID || got.Date != tc.expected.Date ||
				got.Photo != tc.expected.Photo || got.MimeType != tc.expected.MimeType {
				t.Errorf("Normalize = %+v, want %+v", got, tc.expected)
			}
			if len(got.TextEntities) != len(tc.expected.TextEntities) {
				t.Fatalf("entities = %d, want %d", len(got.TextEntities), len(tc.expected.TextEntities))
			}
			for i, e := range got.TextEntities {
				if e != tc.expected.TextEntities[i] {
					t.Errorf("entity[%d] = %+v, want %+v", i, e, tc.expected.TextEntities[i])
				}
			}
		})
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	msg := &telegram.NormalizedMessage{
		TextEntities: []telegram.TextEntity{
			{Text: "A"},
			{Text: "B"},
			{Text: "C"},
		},
	}
	if got := msg.Text(); got != "ABC" {
		t.Errorf("Text = %q, want %q", got, "ABC")
	}

	empty := &telegram.NormalizedMessage{}
	if got := empty.Text(); got != "" {
		t.Errorf("Text = %q, want empty", got)
	}
}

func TestMimeTypeForPhoto(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		path     string
		expected string
	}{
		{"pic.jpg", "image/jpeg"},
		{"pic.jpeg", "image/jpeg"},
		{"pic.PNG", "image/png"},
		{"pic.gif", "image/gif"},
		{"pic.webp", "image/webp"},
		{"pic.bmp", "image/bmp"},
		{"pic.tiff", ""},
		{"noext", ""},
	}

	for _, tc := range testCases {
		if got := telegram.MimeTypeForPhoto(tc.path); got != tc.expected {
			t.Errorf("MimeTypeForPhoto(%q) = %q, want %q", tc.path, got, tc.expected)
		}
	}
}
