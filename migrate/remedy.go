package migrate

import (
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

const (
	// Placeholder replaces a scalar blob that could not be kept.
	Placeholder = "OVERSIZED_USE_SOURCE_API"
	// FallbackField is set on records whose blobs must be read from the
	// source instead.
	FallbackField = "needs_source_fallback"
)

func indexedPlaceholder(i int) string {
	return fmt.Sprintf("OVERSIZED_%d_USE_SOURCE_API", i)
}

// Trim replaces every inline blob still in rec with a placeholder and flags
// the record for source fallback. It returns a new record and how many
// values were replaced; with nothing to replace, the record comes back
// unchanged and unflagged.
func Trim(rec *record.Record, threshold int) (*record.Record, int) {
	out := rec.Clone()
	trimmed := 0
	walk(out, func(s site) {
		str, ok := s.Value.(string)
		if !ok || blob.Classify(str, threshold) != blob.ClassInlineBlob {
			return
		}
		if s.Index != blob.NoIndex && s.Inner == "" {
			s.set(indexedPlaceholder(s.Index))
		} else {
			s.set(Placeholder)
		}
		trimmed++
	})
	if trimmed > 0 {
		out.Set(FallbackField, true)
	}
	return out, trimmed
}
