package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/storage"
)

var (
	ErrUploaderMissing = errors.New("migrate: uploader is required")
	ErrBucketMissing   = errors.New("migrate: bucket is required")
)

const DefaultCallTimeout = 30 * time.Second

type RewriterConfig struct {
	Uploader  storage.Uploader
	Bucket    string
	Threshold int
	// Timeout bounds each upload.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Rewriter moves inline blobs out of a record and into object storage.
type Rewriter struct {
	uploader  storage.Uploader
	bucket    string
	threshold int
	timeout   time.Duration
	logger    *slog.Logger
}

// FieldFailure is one blob that stayed inline.
type FieldFailure struct {
	Site string
	Err  error
}

func (f FieldFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Site, f.Err)
}

func (f FieldFailure) Unwrap() error {
	return f.Err
}

// Rewrite is the outcome of one record rewrite. Record is always a new
// record; the input is never touched.
type Rewrite struct {
	Key      record.Key
	Record   *record.Record
	Uploaded int
	Failed   int
	Failures []FieldFailure
	Targets  []blob.Target
}

func NewRewriter(cfg RewriterConfig) (*Rewriter, error) {
	if cfg.Uploader == nil {
		return nil, ErrUploaderMissing
	}
	if cfg.Bucket == "" {
		return nil, ErrBucketMissing
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = blob.DefaultThreshold
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Rewriter{
		uploader:  cfg.Uploader,
		bucket:    cfg.Bucket,
		threshold: threshold,
		timeout:   timeout,
		logger:    cfg.Logger.WithGroup("rewriter"),
	}, nil
}

func (rw *Rewriter) Threshold() int {
	return rw.threshold
}

// Rewrite uploads every inline blob of rec and replaces it with its URL.
// A failed upload leaves the value inline and is counted; it does not stop
// the rest of the record. The only error returned is a record that does not
// validate against kind.
func (rw *Rewriter) Rewrite(ctx context.Context, kind *record.Kind, rec *record.Record) (*Rewrite, error) {
	key, err := kind.Validate(rec)
	if err != nil {
		return nil, err
	}

	out := &Rewrite{Key: key, Record: rec.Clone()}
	walk(out.Record, func(s site) {
		str, ok := s.Value.(string)
		if !ok || blob.Classify(str, rw.threshold) != blob.ClassInlineBlob {
			return
		}

		target, url, err := rw.externalize(ctx, kind, key, s, str)
		if err != nil {
			out.Failed++
			out.Failures = append(out.Failures, FieldFailure{Site: s.String(), Err: err})
			rw.logger.Warn("blob left inline", "kind", kind.Name, "key", key, "site", s.String(), "error", err)
			return
		}
		s.set(url)
		out.Uploaded++
		out.Targets = append(out.Targets, target)
	})
	return out, nil
}

func (rw *Rewriter) externalize(ctx context.Context, kind *record.Kind, key record.Key, s site, value string) (blob.Target, string, error) {
	payload, err := blob.Parse(value)
	if err != nil {
		return blob.Target{}, "", err
	}
	name, index := s.Name(kind)
	target := blob.Target{
		Bucket:    rw.bucket,
		Path:      blob.TargetPath(kind.StoragePrefix, key.String(), name, index, payload.Extension()),
		MediaType: payload.MediaType,
	}

	uploadCtx, cancel := context.WithTimeout(ctx, rw.timeout)
	defer cancel()
	url, err := rw.uploader.Upload(uploadCtx, target, payload.Data)
	if err != nil {
		return target, "", err
	}
	return target, url, nil
}
