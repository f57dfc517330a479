package migrate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/internal/tkv"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/source"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/storage"
	"github.com/stretchr/testify/require"
)

const testBucket = "media"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// widgetKind stores "photo" under the name "main".
func widgetKind() *record.Kind {
	return &record.Kind{
		Name:          "widget",
		Collection:    "widgets",
		StoragePrefix: "storage",
		Fields: map[string]record.FieldType{
			"name":  record.TypeString,
			"photo": record.TypeString,
		},
		Aliases: map[string]string{"photo": "main", "gallery": "sub", "receipts": "receipt"},
	}
}

// pngDataURI returns a data URI whose encoded part is at least n characters.
func pngDataURI(n int) string {
	raw := make([]byte, n*3/4+3)
	copy(raw, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

// bareJPEG returns unprefixed base64 of a JPEG-looking payload.
func bareJPEG(n int) string {
	raw := make([]byte, n*3/4+3)
	copy(raw, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return base64.StdEncoding.EncodeToString(raw)
}

func mustDecode(t *testing.T, s string) *record.Record {
	t.Helper()
	rec, err := record.Decode([]byte(s))
	require.NoError(t, err)
	return rec
}

func jsonOf(t *testing.T, rec *record.Record) string {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(data)
}

func newRewriter(t *testing.T, up storage.Uploader) *Rewriter {
	t.Helper()
	rw, err := NewRewriter(RewriterConfig{Uploader: up, Bucket: testBucket, Logger: quietLogger()})
	require.NoError(t, err)
	return rw
}

func newLocal(t *testing.T, budget int) *docstore.Local {
	t.Helper()
	store, err := tkv.New(tkv.Config{Logger: quietLogger(), InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	local, err := docstore.NewLocal(store, budget, quietLogger())
	require.NoError(t, err)
	return local
}

// memSource serves records built from JSON. Keys listed in block wait for
// the context to end. Every read takes at least latency.
type memSource struct {
	mu      sync.Mutex
	records map[record.Key]string
	block   map[record.Key]bool
	latency time.Duration
	reads   []record.Key
	readAt  []time.Time
}

func newMemSource() *memSource {
	return &memSource{records: map[record.Key]string{}, block: map[record.Key]bool{}}
}

func (m *memSource) put(key record.Key, doc string) {
	m.records[key] = doc
}

func (m *memSource) List(ctx context.Context, kind *record.Kind) ([]record.Key, error) {
	var keys []record.Key
	for k := range m.records {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memSource) Read(ctx context.Context, kind *record.Kind, key record.Key) (*record.Record, error) {
	m.mu.Lock()
	m.reads = append(m.reads, key)
	m.readAt = append(m.readAt, time.Now())
	m.mu.Unlock()

	if m.latency > 0 {
		time.Sleep(m.latency)
	}

	if m.block[key] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	doc, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, key)
	}
	rec, err := record.Decode([]byte(doc))
	if err != nil {
		return nil, err
	}
	if _, err := kind.Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// failingWriter rejects writes for chosen keys and passes the rest on.
type failingWriter struct {
	next docstore.Writer
	fail map[record.Key]bool
}

func (f *failingWriter) Write(ctx context.Context, collection string, key record.Key, rec *record.Record) error {
	if f.fail[key] {
		return &docstore.WriteError{Op: "create", Status: 500, Body: "backend unavailable"}
	}
	return f.next.Write(ctx, collection, key, rec)
}
