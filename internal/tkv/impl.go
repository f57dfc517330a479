package tkv

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/jellydator/ttlcache/v3"
	pkgerrors "github.com/pkg/errors"
)

var DefaultCacheTTL = 30 * time.Second

type tkv struct {
	logger *slog.Logger
	store  *badger.DB
	cache  *ttlcache.Cache[string, []byte]
}

var _ TKV = &tkv{}

func New(config Config) (TKV, error) {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Directory == "" {
			return nil, ErrDirectoryMissing
		}
		if err := os.MkdirAll(config.Directory, 0755); err != nil {
			return nil, &ErrInternal{Err: err}
		}
		opts = badger.DefaultOptions(config.Directory)
	}
	opts = opts.WithLogger(newLogger(config.Logger.WithGroup("badger")))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &ErrInternal{Err: pkgerrors.Wrap(err, "open badger")}
	}

	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	// Touch-on-hit would keep hot keys alive forever; reads must age out.
	cache := ttlcache.New[string, []byte](
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go cache.Start()

	return &tkv{
		logger: config.Logger.WithGroup("tkv"),
		store:  db,
		cache:  cache,
	}, nil
}

func (t *tkv) Close() error {
	t.cache.Stop()
	t.cache.DeleteAll()
	if err := t.store.Close(); err != nil {
		t.logger.Error("error closing store db", "error", err)
		return &ErrInternal{Err: err}
	}
	return nil
}

func (t *tkv) Get(key string) ([]byte, error) {
	if item := t.cache.Get(key); item != nil && !item.IsExpired() {
		return clone(item.Value()), nil
	}

	var value []byte
	err := t.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &ErrKeyNotFound{Key: key}
			}
			return &ErrInternal{Err: err}
		}
		value, err = item.ValueCopy(nil)
		if err != nil {
			return &ErrInternal{Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.cache.Set(key, clone(value), ttlcache.DefaultTTL)
	return value, nil
}

func (t *tkv) Set(key string, value []byte) error {
	err := t.store.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return &ErrInternal{Err: err}
		}
		return nil
	})
	if err != nil {
		t.cache.Delete(key)
		return err
	}
	t.cache.Set(key, clone(value), ttlcache.DefaultTTL)
	return nil
}

func (t *tkv) Delete(key string) error {
	t.cache.Delete(key)
	return t.store.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil {
			return &ErrInternal{Err: err}
		}
		return nil
	})
}

func (t *tkv) Iterate(prefix string, offset int, limit int) ([]Entry, error) {
	var entries []Entry
	err := t.store.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		skipped := 0

		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(entries) >= limit {
				break
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return &ErrInternal{Err: err}
			}
			entries = append(entries, Entry{Key: string(item.KeyCopy(nil)), Value: val})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
