// Package source reads records of a known kind from where the application
// keeps them: its HTTP data API or its SQLite database.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

var (
	ErrNotFound      = errors.New("source: record not found")
	ErrNoListPath    = errors.New("source: kind has no list path")
	ErrNoItemPath    = errors.New("source: kind has no item path")
	ErrNoTable       = errors.New("source: kind has no table")
	ErrClientMissing = errors.New("source: http client is required")
	ErrPathMissing   = errors.New("source: database path is required")
)

// Reader lists and fetches records. Every returned record has passed
// kind.Validate.
type Reader interface {
	List(ctx context.Context, kind *record.Kind) ([]record.Key, error)
	Read(ctx context.Context, kind *record.Kind, key record.Key) (*record.Record, error)
}

// validate checks rec against kind and that it carries the requested key.
func validate(kind *record.Kind, key record.Key, rec *record.Record) error {
	got, err := kind.Validate(rec)
	if err != nil {
		return err
	}
	if got != key {
		return &record.ValidationError{
			Kind:   kind.Name,
			Field:  keyField(kind),
			Reason: fmt.Sprintf("asked for key %s, got %s", key, got),
		}
	}
	return nil
}

func keyField(kind *record.Kind) string {
	if kind.KeyField == "" {
		return "id"
	}
	return kind.KeyField
}

// dedupe keeps the first occurrence of every key.
func dedupe(keys []record.Key) []record.Key {
	seen := make(map[record.Key]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
