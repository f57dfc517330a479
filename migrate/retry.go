package migrate

import (
	"slices"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/ledger"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

// RetryPolicy picks items for another pass by the reason their latest
// outcome carries.
type RetryPolicy struct {
	Retarget []Reason
}

// DefaultRetryPolicy retargets oversized records and records with blobs
// left inline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retarget: []Reason{ReasonSizeExceeded, ReasonUpload}}
}

func (p RetryPolicy) Matches(e ledger.Entry) bool {
	if e.Reason == "" {
		return false
	}
	return slices.Contains(p.Retarget, Reason(e.Reason))
}

// Retargets builds the next work list for kind from the ledger, in key
// order.
func Retargets(l *ledger.Ledger, kind *record.Kind, policy RetryPolicy) ([]WorkItem, error) {
	latest, err := l.Latest(kind.Collection)
	if err != nil {
		return nil, err
	}
	var work []WorkItem
	for _, e := range latest {
		if e.Kind != "" && e.Kind != kind.Name {
			continue
		}
		if policy.Matches(e) {
			work = append(work, WorkItem{Kind: kind, Key: e.Key})
		}
	}
	return work, nil
}

// Items builds a work list for kind from keys.
func Items(kind *record.Kind, keys []record.Key) []WorkItem {
	work := make([]WorkItem, 0, len(keys))
	for _, k := range keys {
		work = append(work, WorkItem{Kind: kind, Key: k})
	}
	return work
}
