package migrate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/ledger"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/source"
)

const DefaultDelay = 200 * time.Millisecond

var (
	ErrSourceMissing   = errors.New("migrate: source reader is required")
	ErrRewriterMissing = errors.New("migrate: rewriter is required")
	ErrWriterMissing   = errors.New("migrate: document writer is required")
)

// WorkItem names one record to migrate.
type WorkItem struct {
	Kind *record.Kind
	Key  record.Key
}

type DriverConfig struct {
	Source   source.Reader
	Rewriter *Rewriter
	Writer   docstore.Writer

	// Ledger, when set, receives every item's outcome.
	Ledger *ledger.Ledger
	PassID string

	// Delay is the pause after an item finishes and before the next one
	// starts. Zero disables the throttle.
	Delay time.Duration
	// Timeout bounds each source read and each document write.
	Timeout time.Duration

	// OnItem is called after every attempted item.
	OnItem func(ItemResult)

	Logger *slog.Logger
}

// Driver runs the read, rewrite and write pipeline over a work list, one
// item at a time.
type Driver struct {
	source   source.Reader
	rewriter *Rewriter
	writer   docstore.Writer
	ledger   *ledger.Ledger
	passID   string
	delay    time.Duration
	timeout  time.Duration
	onItem   func(ItemResult)
	logger   *slog.Logger
}

func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Source == nil {
		return nil, ErrSourceMissing
	}
	if cfg.Rewriter == nil {
		return nil, ErrRewriterMissing
	}
	if cfg.Writer == nil {
		return nil, ErrWriterMissing
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	passID := cfg.PassID
	if passID == "" {
		passID = ledger.NewPassID()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	delay := cfg.Delay
	if delay < 0 {
		delay = 0
	}
	return &Driver{
		source:   cfg.Source,
		rewriter: cfg.Rewriter,
		writer:   cfg.Writer,
		ledger:   cfg.Ledger,
		passID:   passID,
		delay:    delay,
		timeout:  timeout,
		onItem:   cfg.OnItem,
		logger:   cfg.Logger.WithGroup("driver").With("pass", passID),
	}, nil
}

func (d *Driver) PassID() string {
	return d.passID
}

// Run processes work in order. It never fails as a whole: every item ends
// in the report. When ctx is cancelled the run stops before the next item
// and the rest are reported as not attempted.
func (d *Driver) Run(ctx context.Context, work []WorkItem) *Report {
	report := &Report{PassID: d.passID, Started: time.Now()}

	d.logger.Info("pass started", "items", len(work), "delay", d.delay)

loop:
	for i, item := range work {
		if err := ctx.Err(); err != nil {
			d.abandon(report, work[i:], err)
			break
		}
		if i > 0 && d.delay > 0 {
			timer := time.NewTimer(d.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				d.abandon(report, work[i:], ctx.Err())
				break loop
			}
		}

		res := d.process(ctx, item)
		report.add(res)
		d.record(res)
		if d.onItem != nil {
			d.onItem(res)
		}
	}

	report.Finished = time.Now()
	d.logger.Info("pass finished", "report", report)
	return report
}

func (d *Driver) abandon(report *Report, rest []WorkItem, cause error) {
	d.logger.Warn("pass interrupted", "remaining", len(rest), "cause", cause)
	for _, item := range rest {
		report.add(ItemResult{
			Kind:       item.Kind.Name,
			Collection: item.Kind.Collection,
			Key:        item.Key,
			State:      StateNotAttempted,
		})
	}
}

func (d *Driver) process(ctx context.Context, item WorkItem) ItemResult {
	started := time.Now()
	res := ItemResult{
		Kind:       item.Kind.Name,
		Collection: item.Kind.Collection,
		Key:        item.Key,
		State:      StatePending,
	}
	fail := func(phase Reason, err error) ItemResult {
		res.State = StateFailed
		res.Reason = reasonFor(phase, err)
		res.Err = err
		res.Duration = time.Since(started)
		d.logger.Warn("item failed", "kind", res.Kind, "key", res.Key, "reason", res.Reason, "error", err)
		return res
	}

	readCtx, cancel := context.WithTimeout(ctx, d.timeout)
	rec, err := d.source.Read(readCtx, item.Kind, item.Key)
	cancel()
	if err != nil {
		return fail(ReasonRead, err)
	}
	res.State = StateClassified

	rw, err := d.rewriter.Rewrite(ctx, item.Kind, rec)
	if err != nil {
		return fail(ReasonInvalid, err)
	}
	res.BlobsUploaded = rw.Uploaded
	res.BlobsFailed = rw.Failed
	res.Failures = rw.Failures
	res.State = StateBlobsUploaded

	out := rw.Record
	err = d.write(ctx, item, rw.Key, out)
	var se *docstore.SizeExceeded
	if errors.As(err, &se) {
		trimmed, n := Trim(out, d.rewriter.Threshold())
		if n == 0 {
			return fail(ReasonSizeExceeded, err)
		}
		d.logger.Info("retrying oversized item with placeholders", "kind", res.Kind, "key", res.Key, "size", se.Actual, "budget", se.Budget, "trimmed", n)
		res.Fallback = true
		err = d.write(ctx, item, rw.Key, trimmed)
	}
	if err != nil {
		if len(rw.Targets) > 0 {
			d.logger.Warn("uploaded objects orphaned by failed write", "key", res.Key, "objects", len(rw.Targets))
		}
		return fail(ReasonWrite, err)
	}

	res.State = StateWritten
	switch {
	case res.BlobsFailed > 0:
		res.Reason = ReasonUpload
	case res.Fallback:
		res.Reason = ReasonSizeExceeded
	}
	res.Duration = time.Since(started)
	d.logger.Info("item written", "kind", res.Kind, "key", res.Key, "uploaded", res.BlobsUploaded, "blobs_failed", res.BlobsFailed, "fallback", res.Fallback)
	return res
}

func (d *Driver) write(ctx context.Context, item WorkItem, key record.Key, rec *record.Record) error {
	writeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.writer.Write(writeCtx, item.Kind.Collection, key, rec)
}

func (d *Driver) record(res ItemResult) {
	if d.ledger == nil {
		return
	}
	entry := ledger.Entry{
		PassID:        d.passID,
		Kind:          res.Kind,
		Collection:    res.Collection,
		Key:           res.Key,
		State:         string(res.State),
		Reason:        string(res.Reason),
		BlobsUploaded: res.BlobsUploaded,
		BlobsFailed:   res.BlobsFailed,
		Fallback:      res.Fallback,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := d.ledger.Record(entry); err != nil {
		d.logger.Error("could not record outcome", "key", res.Key, "error", err)
	}
}
