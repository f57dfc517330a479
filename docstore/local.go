package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/internal/tkv"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/pkg/errors"
)

const localPrefix = "doc:"

// Local is a badger-backed destination with the same budget and
// replace-on-write rules as Firestore. It serves dry runs and offline
// mirrors.
type Local struct {
	store  tkv.TKVDataHandler
	budget int
	logger *slog.Logger
}

var (
	_ Writer = &Local{}
	_ Getter = &Local{}
)

func NewLocal(store tkv.TKVDataHandler, budget int, logger *slog.Logger) (*Local, error) {
	if store == nil {
		return nil, ErrStoreMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Local{store: store, budget: budget, logger: logger.WithGroup("local_docstore")}, nil
}

func localKey(collection string, key record.Key) string {
	return localPrefix + collection + ":" + key.String()
}

func (l *Local) Write(ctx context.Context, collection string, key record.Key, rec *record.Record) error {
	if err := checkTarget(collection, key); err != nil {
		return err
	}
	if _, err := measure(collection, key, rec, l.budget); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &WriteError{Op: "put", Err: err}
	}
	data, err := rec.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	if err := l.store.Set(localKey(collection, key), data); err != nil {
		return &WriteError{Op: "put", Err: err}
	}
	l.logger.Debug("document stored", "collection", collection, "key", key, "bytes", len(data))
	return nil
}

func (l *Local) Get(ctx context.Context, collection string, key record.Key) (*record.Record, error) {
	if err := checkTarget(collection, key); err != nil {
		return nil, err
	}
	data, err := l.store.Get(localKey(collection, key))
	if err != nil {
		if tkv.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
		}
		return nil, err
	}
	return record.Decode(data)
}

// Keys lists the keys stored for a collection.
func (l *Local) Keys(collection string) ([]record.Key, error) {
	prefix := localPrefix + collection + ":"
	entries, err := l.store.Iterate(prefix, 0, 0)
	if err != nil {
		return nil, err
	}
	keys := make([]record.Key, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, record.Key(strings.TrimPrefix(e.Key, prefix)))
	}
	return keys, nil
}
