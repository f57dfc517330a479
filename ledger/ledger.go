// Package ledger records the outcome of every item of every migration pass
// in the local store, so a later pass can be built from what failed.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/internal/tkv"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

var (
	ErrStoreMissing = errors.New("ledger: store is required")
	ErrNoOutcome    = errors.New("ledger: no outcome recorded")
	ErrEntryInvalid = errors.New("ledger: entry needs a pass id, collection and key")
)

// Entry is one item's outcome in one pass.
type Entry struct {
	PassID     string     `json:"pass_id"`
	Kind       string     `json:"kind"`
	Collection string     `json:"collection"`
	Key        record.Key `json:"key"`
	State      string     `json:"state"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`

	BlobsUploaded int  `json:"blobs_uploaded"`
	BlobsFailed   int  `json:"blobs_failed"`
	Fallback      bool `json:"fallback,omitempty"`

	At time.Time `json:"at"`
}

// Ledger stores entries under three layouts:
//
//	latest:<collection>:<key>              newest entry for the key
//	pass:<pass>:<collection>:<key>         entry as written by that pass
//	history:<collection>:<key>:<unixnano>  every entry, oldest first
type Ledger struct {
	store  tkv.TKVDataHandler
	logger *slog.Logger
	now    func() time.Time
}

func New(store tkv.TKVDataHandler, logger *slog.Logger) (*Ledger, error) {
	if store == nil {
		return nil, ErrStoreMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger.WithGroup("ledger"), now: time.Now}, nil
}

// NewPassID returns a fresh pass identifier.
func NewPassID() string {
	return uuid.New().String()
}

func latestKey(collection string, key record.Key) string {
	return fmt.Sprintf("latest:%s:%s", collection, key)
}

func passKey(passID, collection string, key record.Key) string {
	return fmt.Sprintf("pass:%s:%s:%s", passID, collection, key)
}

func historyKey(collection string, key record.Key, at time.Time) string {
	return fmt.Sprintf("history:%s:%s:%020d", collection, key, at.UnixNano())
}

// Record stores e. A zero At is stamped with the current time.
func (l *Ledger) Record(e Entry) error {
	if e.PassID == "" || e.Collection == "" || e.Key == "" {
		return ErrEntryInvalid
	}
	if e.At.IsZero() {
		e.At = l.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return pkgerrors.Wrap(err, "encode ledger entry")
	}
	for _, k := range []string{
		historyKey(e.Collection, e.Key, e.At),
		passKey(e.PassID, e.Collection, e.Key),
		latestKey(e.Collection, e.Key),
	} {
		if err := l.store.Set(k, data); err != nil {
			return pkgerrors.Wrapf(err, "store ledger entry %s", k)
		}
	}
	l.logger.Debug("outcome recorded", "pass", e.PassID, "collection", e.Collection, "key", e.Key, "state", e.State)
	return nil
}

// LatestFor returns the newest entry for one key.
func (l *Ledger) LatestFor(collection string, key record.Key) (Entry, error) {
	data, err := l.store.Get(latestKey(collection, key))
	if err != nil {
		if tkv.IsNotFound(err) {
			return Entry{}, fmt.Errorf("%w: %s/%s", ErrNoOutcome, collection, key)
		}
		return Entry{}, err
	}
	return decode(data)
}

// Latest returns the newest entry of every key of a collection, ordered by
// key.
func (l *Ledger) Latest(collection string) ([]Entry, error) {
	return l.scan(fmt.Sprintf("latest:%s:", collection))
}

// Pass returns every entry written by a pass.
func (l *Ledger) Pass(passID string) ([]Entry, error) {
	return l.scan(fmt.Sprintf("pass:%s:", passID))
}

// History returns every entry for a key, oldest first.
func (l *Ledger) History(collection string, key record.Key) ([]Entry, error) {
	entries, err := l.scan(fmt.Sprintf("history:%s:%s:", collection, key))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.Before(entries[j].At)
	})
	return entries, nil
}

func (l *Ledger) scan(prefix string) ([]Entry, error) {
	raw, err := l.store.Iterate(prefix, 0, 0)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		e, err := decode(item.Value)
		if err != nil {
			l.logger.Warn("skipping unreadable ledger entry", "key", item.Key, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decode(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, pkgerrors.Wrap(err, "decode ledger entry")
	}
	return e, nil
}
