package migrate

import (
	"log/slog"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

// ItemResult is the final state of one item.
type ItemResult struct {
	Kind       string
	Collection string
	Key        record.Key
	State      State
	Reason     Reason
	Err        error

	BlobsUploaded int
	BlobsFailed   int
	Failures      []FieldFailure

	// Fallback is set when the record was only written after its remaining
	// inline blobs were replaced by placeholders.
	Fallback bool

	Duration time.Duration
}

func (r ItemResult) Succeeded() bool {
	return r.State == StateWritten
}

// Report sums up a pass.
type Report struct {
	PassID string

	Success       int
	Failed        int
	NotAttempted  int
	BlobsUploaded int
	BlobsFailed   int

	Items []ItemResult

	Started  time.Time
	Finished time.Time
}

func (r *Report) add(res ItemResult) {
	r.Items = append(r.Items, res)
	switch res.State {
	case StateWritten:
		r.Success++
	case StateNotAttempted:
		r.NotAttempted++
	default:
		r.Failed++
	}
	r.BlobsUploaded += res.BlobsUploaded
	r.BlobsFailed += res.BlobsFailed
}

// ByReason counts results per reason, leaving out clean successes.
func (r *Report) ByReason() map[Reason]int {
	out := make(map[Reason]int)
	for _, item := range r.Items {
		if item.Reason == ReasonNone {
			continue
		}
		out[item.Reason]++
	}
	return out
}

// LogValue implements slog.LogValuer.
func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("pass", r.PassID),
		slog.Int("success", r.Success),
		slog.Int("failed", r.Failed),
		slog.Int("not_attempted", r.NotAttempted),
		slog.Int("blobs_uploaded", r.BlobsUploaded),
		slog.Int("blobs_failed", r.BlobsFailed),
		slog.Duration("elapsed", r.Finished.Sub(r.Started)),
	)
}
