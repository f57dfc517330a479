// Package docstore writes rewritten records to a document store that caps
// the size of a single document.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

// DefaultBudget is the largest encoded document accepted, in bytes.
const DefaultBudget = 1_000_000

var (
	ErrNotFound          = errors.New("docstore: document not found")
	ErrCollectionMissing = errors.New("docstore: collection cannot be empty")
	ErrKeyMissing        = errors.New("docstore: key cannot be empty")
	ErrClientMissing     = errors.New("docstore: http client is required")
	ErrStoreMissing      = errors.New("docstore: local store is required")
)

// Writer replaces the whole document at collection/key. A write either
// lands completely or not at all; no field-level patching.
type Writer interface {
	Write(ctx context.Context, collection string, key record.Key, rec *record.Record) error
}

// Getter reads a document back.
type Getter interface {
	Get(ctx context.Context, collection string, key record.Key) (*record.Record, error)
}

// SizeExceeded is returned before any network call when the encoded
// document is over budget.
type SizeExceeded struct {
	Collection string
	Key        record.Key
	Actual     int
	Budget     int
}

func (e *SizeExceeded) Error() string {
	return fmt.Sprintf("document %s/%s is %d bytes, over the %d byte budget", e.Collection, e.Key, e.Actual, e.Budget)
}

// WriteError is a rejected delete or create. Status is 0 when no answer
// came back.
type WriteError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func checkTarget(collection string, key record.Key) error {
	if collection == "" {
		return ErrCollectionMissing
	}
	if key == "" {
		return ErrKeyMissing
	}
	return nil
}

// measure encodes rec and fails with SizeExceeded when it is over budget.
func measure(collection string, key record.Key, rec *record.Record, budget int) ([]byte, error) {
	body, err := EncodeJSON(rec)
	if err != nil {
		return nil, err
	}
	if len(body) > budget {
		return nil, &SizeExceeded{Collection: collection, Key: key, Actual: len(body), Budget: budget}
	}
	return body, nil
}
