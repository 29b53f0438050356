// Package pipeline implements the export ingestion pipeline: a streaming
// reader over exported archive files, the garbage filter engine, and the
// ingestion pass that persists surviving records.
package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNotFound is returned when the source file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformedInput is returned when the byte stream is not valid JSON
	// at the point of failure. Items yielded before that point stand.
	ErrMalformedInput = errors.New("malformed input")
)

// ForEach streams the items of the JSON array at arrayKey inside the
// document at path, calling fn once per item, in order. An empty arrayKey
// means the document root is the array itself. Memory use is bounded by the
// largest single item; the whole array is never materialized. Returning an
// error from fn stops the pass and propagates the error.
func ForEach(path, arrayKey string, fn func(map[string]any) error) error {
	return walk(path, arrayKey, func(dec *json.Decoder) error {
		var item map[string]any
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return fn(item)
	})
}

// Count consumes the same stream as ForEach just to count items. For any
// input it reports exactly the number of items ForEach would yield.
func Count(path, arrayKey string) (int, error) {
	n := 0
	err := walk(path, arrayKey, func(dec *json.Decoder) error {
		var item json.RawMessage
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		n++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// walk opens the document, positions the decoder at the target array, and
// calls item once per element. It stops after the closing bracket; trailing
// document content is not parsed.
func walk(path, arrayKey string, item func(*json.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()

	if arrayKey == "" {
		return readArray(dec, item)
	}

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: unexpected end of document", ErrMalformedInput)
			}
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			// Key absent from the document: zero items.
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key, got %v", ErrMalformedInput, tok)
		}
		if key == arrayKey {
			return readArray(dec, item)
		}
		// Skip this key's value.
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
	}
}

func readArray(dec *json.Decoder, item func(*json.Decoder) error) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for dec.More() {
		if err := item(dec); err != nil {
			return err
		}
	}
	if err := expectDelim(dec, ']'); err != nil {
		return err
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedInput, want, tok)
	}
	return nil
}
