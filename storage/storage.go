// Package storage puts decoded blobs into an object store and hands back a
// URL the document can reference instead of the bytes.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
)

var (
	ErrClientMissing = errors.New("storage: http client is required")
	ErrBucketMissing = errors.New("storage: bucket is required")
	ErrPathMissing   = errors.New("storage: object path is required")
)

// Uploader creates or overwrites one object per call. There is no rollback:
// an object uploaded for a record whose write later fails stays behind.
type Uploader interface {
	Upload(ctx context.Context, target blob.Target, data []byte) (string, error)
}

// UploadError is any failed upload. Status is 0 when the request never got
// an answer.
type UploadError struct {
	Bucket string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload %s/%s: status %d: %s", e.Bucket, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func validate(target blob.Target) error {
	if target.Bucket == "" {
		return ErrBucketMissing
	}
	if target.Path == "" {
		return ErrPathMissing
	}
	return nil
}
