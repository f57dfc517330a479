package tkv

import (
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func createTestTKV(t *testing.T) TKV {
	t.Helper()
	store, err := New(Config{
		Logger:    testLogger(),
		Directory: t.TempDir(),
		CacheTTL:  time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create test TKV: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestTKV_GetSetDelete(t *testing.T) {
	store := createTestTKV(t)

	t.Run("Set and Get basic value", func(t *testing.T) {
		if err := store.Set("doc:1", []byte(`{"id":1}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := store.Get("doc:1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != `{"id":1}` {
			t.Errorf("Get() got = %s, want %s", got, `{"id":1}`)
		}
	})

	t.Run("Overwrite replaces cached value", func(t *testing.T) {
		if err := store.Set("doc:2", []byte("v1")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if _, err := store.Get("doc:2"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if err := store.Set("doc:2", []byte("v2")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := store.Get("doc:2")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "v2" {
			t.Errorf("Get() after overwrite got = %s, want v2", got)
		}
	})

	t.Run("Returned slices do not alias the cache", func(t *testing.T) {
		if err := store.Set("doc:3", []byte("abc")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, _ := store.Get("doc:3")
		got[0] = 'X'
		again, _ := store.Get("doc:3")
		if string(again) != "abc" {
			t.Errorf("Get() got = %s after caller mutation, want abc", again)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		_, err := store.Get("missing")
		var nf *ErrKeyNotFound
		if !errors.As(err, &nf) {
			t.Fatalf("Get() expected ErrKeyNotFound, got %T", err)
		}
		if nf.Key != "missing" {
			t.Errorf("ErrKeyNotFound.Key got = %s, want missing", nf.Key)
		}
		if !IsNotFound(err) {
			t.Errorf("IsNotFound() = false, want true")
		}
	})

	t.Run("Delete existing key", func(t *testing.T) {
		if err := store.Set("gone", []byte("x")); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if _, err := store.Get("gone"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if err := store.Delete("gone"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := store.Get("gone"); !IsNotFound(err) {
			t.Errorf("Get() after Delete expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Delete non-existent key", func(t *testing.T) {
		if err := store.Delete("never-set"); err != nil {
			t.Errorf("Delete() of non-existent key error = %v, wantErr nil", err)
		}
	})
}

func TestTKV_Iterate(t *testing.T) {
	store := createTestTKV(t)

	for _, k := range []string{"p:1", "p:2", "p:3", "q:1"} {
		if err := store.Set(k, []byte("v-"+k)); err != nil {
			t.Fatalf("Setup: Set(%s) error = %v", k, err)
		}
	}

	keysOf := func(entries []Entry) []string {
		var keys []string
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
		return keys
	}

	tests := []struct {
		name   string
		prefix string
		offset int
		limit  int
		want   []string
	}{
		{"prefix only", "p:", 0, 0, []string{"p:1", "p:2", "p:3"}},
		{"offset", "p:", 1, 0, []string{"p:2", "p:3"}},
		{"limit", "p:", 0, 2, []string{"p:1", "p:2"}},
		{"offset and limit", "p:", 1, 1, []string{"p:2"}},
		{"no match", "z:", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := store.Iterate(tt.prefix, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("Iterate() error = %v", err)
			}
			if got := keysOf(entries); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Iterate() keys = %v, want %v", got, tt.want)
			}
		})
	}

	entries, _ := store.Iterate("q:", 0, 0)
	if len(entries) != 1 || string(entries[0].Value) != "v-q:1" {
		t.Errorf("Iterate() values = %v, want [v-q:1]", entries)
	}
}

func TestTKV_InMemory(t *testing.T) {
	store, err := New(Config{Logger: testLogger(), InMemory: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if err := store.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := store.Get("k"); err != nil || string(got) != "v" {
		t.Errorf("Get() = %s, %v; want v, nil", got, err)
	}
}

func TestTKV_RequiresDirectory(t *testing.T) {
	if _, err := New(Config{Logger: testLogger()}); !errors.Is(err, ErrDirectoryMissing) {
		t.Errorf("New() error = %v, want ErrDirectoryMissing", err)
	}
}
