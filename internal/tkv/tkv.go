// Package tkv is the local badger-backed key/value store behind the pass
// ledger and the local document destination. Recent reads are served from a
// ttl cache that is kept coherent on every write.
package tkv

import (
	"log/slog"
	"time"
)

type Config struct {
	Logger *slog.Logger

	// Directory holds the badger files. Ignored when InMemory is set.
	Directory string
	InMemory  bool

	// CacheTTL bounds how long a read is served from memory.
	CacheTTL time.Duration
}

type Entry struct {
	Key   string
	Value []byte
}

type TKVDataHandler interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error

	// Iterate returns entries under prefix in key order. A limit of 0 means
	// no limit.
	Iterate(prefix string, offset int, limit int) ([]Entry, error)
}

type TKV interface {
	TKVDataHandler

	Close() error
}
