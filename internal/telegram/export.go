// Package telegram defines the schema of exported Telegram channel archives
// and the normalization of raw export records into typed messages.
package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrValidation is returned when a raw record fails normalization. Callers
// skip the offending record and continue with the next one.
var ErrValidation = errors.New("validation error")

// Record kinds found in an export's messages array.
const (
	TypeMessage = "message"
	TypeService = "service"
)

// TextEntity is one run of rich text. The displayed text of a message is the
// concatenation of each run's Text field in order; Type never affects it.
type TextEntity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// RawMessage is one untrusted record from the export's messages array. Only
// message-typed records carry user content; service records are skipped.
type RawMessage struct {
	Type         string          `json:"type"`
	ID           int64           `json:"id"`
	Date         string          `json:"date"`
	Edited       string          `json:"edited,omitempty"`
	TextEntities []TextEntity    `json:"text_entities"`
	Photo        string          `json:"photo,omitempty"`
	MimeType     string          `json:"mime_type,omitempty"`
	Reactions    json.RawMessage `json:"reactions,omitempty"`
}

// NormalizedMessage is a validated user message ready for filtering.
type NormalizedMessage struct {
	ID           int64
	Date         string
	Edited       string
	TextEntities []TextEntity
	Photo        string
	MimeType     string
	Reactions    json.RawMessage
}

// Text reconstructs the displayed message text by concatenating every
// entity's text in original order. No separators or markup are inserted.
func (m *NormalizedMessage) Text() string {
	var b strings.Builder
	for _, e := range m.TextEntities {
		b.WriteString(e.Text)
	}
	return b.String()
}

// mimeByExtension maps photo file extensions to MIME types. Unknown
// extensions yield no MIME type, which is not an error.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// MimeTypeForPhoto infers a MIME type from a photo path's extension.
// Returns an empty string for unknown extensions.
func MimeTypeForPhoto(path string) string {
	return mimeByExtension[strings.ToLower(filepath.Ext(path))]
}

// Normalize validates a raw record and returns a typed message, or nil when
// the record is not a user message. A validation failure on a single record
// returns ErrValidation so the caller can skip it without aborting the pass.
func Normalize(raw map[string]any) (*NormalizedMessage, error) {
	kind, _ := raw["type"].(string)
	if kind != TypeMessage {
		return nil, nil
	}

	id, ok := asInt64(raw["id"])
	if !ok {
		return nil, fmt.Errorf("%w: message has no integer id", ErrValidation)
	}

	date, ok := raw["date"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: message %d has no date", ErrValidation, id)
	}

	msg := &NormalizedMessage{
		ID:   id,
		Date: date,
	}

	if edited, ok := raw["edited"].(string); ok {
		msg.Edited = edited
	}

	entities, err := parseEntities(raw["text_entities"])
	if err != nil {
		return nil, fmt.Errorf("%w: message %d: %v", ErrValidation, id, err)
	}
	msg.TextEntities = entities

	if photo, ok := raw["photo"].(string); ok && photo != "" {
		msg.Photo = photo
		if mime, ok := raw["mime_type"].(string); ok && mime != "" {
			msg.MimeType = mime
		} else {
			msg.MimeType = MimeTypeForPhoto(photo)
		}
	}

	// Reactions pass through opaquely; their shape is never interpreted.
	if reactions, ok := raw["reactions"]; ok && reactions != nil {
		encoded, err := json.Marshal(reactions)
		if err != nil {
			return nil, fmt.Errorf("%w: message %d: reactions: %v", ErrValidation, id, err)
		}
		msg.Reactions = encoded
	}

	return msg, nil
}

func parseEntities(v any) ([]TextEntity, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errors.New("text_entities is not an array")
	}
	entities := make([]TextEntity, 0, len(items))
	for i, item := range items {
		run, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("text_entities[%d] is not an object", i)
		}
		text, ok := run["text"].(string)
		if !ok {
			return nil, fmt.Errorf("text_entities[%d] has no text", i)
		}
		entity := TextEntity{Text: text}
		if t, ok := run["type"].(string); ok {
			entity.Type = t
		}
		if href, ok := run["href"].(string); ok {
			entity.Href = href
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// asInt64 accepts the numeric shapes encoding/json produces for untyped
// documents. Fractional values are rejected.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, false
		}
		return i, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
