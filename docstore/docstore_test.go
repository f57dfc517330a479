package docstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/internal/tkv"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDecode(t *testing.T, s string) *record.Record {
	t.Helper()
	rec, err := record.Decode([]byte(s))
	require.NoError(t, err)
	return rec
}

func TestEncode(t *testing.T) {
	rec := mustDecode(t, `{"_id":"x","id":42,"name":"Widget","price":12.5,"count":3.0,"ok":true,"note":null,`+
		`"tags":["a",1],"meta":{"k":"v"},"empty":[]}`)

	body, err := docstore.EncodeJSON(rec)
	require.NoError(t, err)

	want := `{"fields":{` +
		`"id":{"integerValue":"42"},` +
		`"name":{"stringValue":"Widget"},` +
		`"price":{"doubleValue":12.5},` +
		`"count":{"integerValue":"3"},` +
		`"ok":{"booleanValue":true},` +
		`"note":{"nullValue":null},` +
		`"tags":{"arrayValue":{"values":[{"stringValue":"a"},{"integerValue":"1"}]}},` +
		`"meta":{"mapValue":{"fields":{"k":{"stringValue":"v"}}}},` +
		`"empty":{"arrayValue":{"values":[]}}` +
		`}}`
	assert.Equal(t, want, string(body))

	size, err := docstore.Size(rec)
	require.NoError(t, err)
	assert.Equal(t, len(want), size)
}

func TestDecodeRoundTrip(t *testing.T) {
	rec := mustDecode(t, `{"id":"7","vals":[1,"x",{"deep":false}],"m":{"a":null}}`)

	body, err := docstore.EncodeJSON(rec)
	require.NoError(t, err)
	doc := mustDecode(t, string(body))

	back, err := docstore.Decode(doc)
	require.NoError(t, err)

	got, _ := json.Marshal(back)
	want, _ := json.Marshal(rec)
	if diff := cmp.Diff(string(want), string(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

type fakeFirestore struct {
	mu       sync.Mutex
	requests []string
	docs     map[string][]byte
	failOn   string
}

func (f *fakeFirestore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	rest := strings.TrimPrefix(r.URL.Path, "/v1/projects/p/databases/(default)/documents/")
	if f.failOn == r.Method {
		http.Error(w, `{"error":{"message":"denied"}}`, http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodDelete:
		if _, ok := f.docs[rest]; !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		delete(f.docs, rest)
		w.Write([]byte(`{}`))
	case http.MethodPost:
		id := r.URL.Query().Get("documentId")
		if _, ok := f.docs[rest+"/"+id]; ok {
			http.Error(w, `{"error":{"code":409}}`, http.StatusConflict)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.docs[rest+"/"+id] = body
		w.Write(body)
	case http.MethodGet:
		body, ok := f.docs[rest]
		if !ok {
			http.Error(w, `{}`, http.StatusNotFound)
			return
		}
		w.Write(body)
	}
}

func newFirestore(t *testing.T, fake *fakeFirestore, budget int) *docstore.Firestore {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	c, err := client.NewClient(&client.Config{
		BaseURL: docstore.DocumentsURL(server.URL+"/v1", "p", ""),
		Timeout: time.Second,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	fs, err := docstore.NewFirestore(docstore.FirestoreConfig{Client: c, Budget: budget, Logger: quietLogger()})
	require.NoError(t, err)
	return fs
}

func TestFirestoreWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("delete 404 is tolerated and create follows", func(t *testing.T) {
		fake := &fakeFirestore{docs: map[string][]byte{}}
		fs := newFirestore(t, fake, 0)

		rec := mustDecode(t, `{"id":42,"name":"Widget"}`)
		require.NoError(t, fs.Write(ctx, "specbook_items", "42", rec))
		assert.Equal(t, []string{
			"DELETE /v1/projects/p/databases/(default)/documents/specbook_items/42",
			"POST /v1/projects/p/databases/(default)/documents/specbook_items",
		}, fake.requests)

		got, err := fs.Get(ctx, "specbook_items", "42")
		require.NoError(t, err)
		name, _ := got.String("name")
		assert.Equal(t, "Widget", name)
	})

	t.Run("rewrite replaces the whole document", func(t *testing.T) {
		fake := &fakeFirestore{docs: map[string][]byte{}}
		fs := newFirestore(t, fake, 0)

		require.NoError(t, fs.Write(ctx, "c", "1", mustDecode(t, `{"id":1,"old":"x"}`)))
		require.NoError(t, fs.Write(ctx, "c", "1", mustDecode(t, `{"id":1,"new":"y"}`)))

		got, err := fs.Get(ctx, "c", "1")
		require.NoError(t, err)
		_, hasOld := got.Get("old")
		assert.False(t, hasOld)
		v, _ := got.String("new")
		assert.Equal(t, "y", v)
	})

	t.Run("over budget fails before any request", func(t *testing.T) {
		fake := &fakeFirestore{docs: map[string][]byte{}}
		fs := newFirestore(t, fake, 100)

		rec := record.New()
		rec.Set("id", "1")
		rec.Set("blob", strings.Repeat("A", 200))
		err := fs.Write(ctx, "c", "1", rec)

		var se *docstore.SizeExceeded
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 100, se.Budget)
		assert.Greater(t, se.Actual, 100)
		assert.Empty(t, fake.requests)
	})

	t.Run("rejected create is a WriteError", func(t *testing.T) {
		fake := &fakeFirestore{docs: map[string][]byte{}, failOn: http.MethodPost}
		fs := newFirestore(t, fake, 0)

		err := fs.Write(ctx, "c", "1", mustDecode(t, `{"id":1}`))
		var we *docstore.WriteError
		require.True(t, errors.As(err, &we))
		assert.Equal(t, "create", we.Op)
		assert.Equal(t, http.StatusForbidden, we.Status)
		assert.Contains(t, we.Body, "denied")
	})

	t.Run("rejected delete is a WriteError", func(t *testing.T) {
		fake := &fakeFirestore{docs: map[string][]byte{}, failOn: http.MethodDelete}
		fs := newFirestore(t, fake, 0)

		err := fs.Write(ctx, "c", "1", mustDecode(t, `{"id":1}`))
		var we *docstore.WriteError
		require.True(t, errors.As(err, &we))
		assert.Equal(t, "delete", we.Op)
	})

	t.Run("missing document", func(t *testing.T) {
		fs := newFirestore(t, &fakeFirestore{docs: map[string][]byte{}}, 0)
		_, err := fs.Get(ctx, "c", "nope")
		require.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("target validation", func(t *testing.T) {
		fs := newFirestore(t, &fakeFirestore{docs: map[string][]byte{}}, 0)
		require.ErrorIs(t, fs.Write(ctx, "", "1", record.New()), docstore.ErrCollectionMissing)
		require.ErrorIs(t, fs.Write(ctx, "c", "", record.New()), docstore.ErrKeyMissing)
	})
}

func TestLocal(t *testing.T) {
	store, err := tkv.New(tkv.Config{Logger: quietLogger(), InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	local, err := docstore.NewLocal(store, 500, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	rec := mustDecode(t, `{"id":42,"name":"Widget","image_url":"https://x/y.png"}`)
	require.NoError(t, local.Write(ctx, "specbook_items", "42", rec))
	require.NoError(t, local.Write(ctx, "specbook_items", "43", mustDecode(t, `{"id":43}`)))
	require.NoError(t, local.Write(ctx, "projects", "1", mustDecode(t, `{"id":1}`)))

	got, err := local.Get(ctx, "specbook_items", "42")
	require.NoError(t, err)
	assert.Equal(t, rec.Names(), got.Names())
	assert.True(t, rec.Equal(got))

	keys, err := local.Keys("specbook_items")
	require.NoError(t, err)
	assert.Equal(t, []record.Key{"42", "43"}, keys)

	big := record.New()
	big.Set("id", "9")
	big.Set("blob", strings.Repeat("B", 600))
	var se *docstore.SizeExceeded
	require.True(t, errors.As(local.Write(ctx, "c", "9", big), &se))
	_, err = local.Get(ctx, "c", "9")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestWriteNeverExceedsBudget(t *testing.T) {
	store, err := tkv.New(tkv.Config{Logger: quietLogger(), InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	const budget = 1000
	local, err := docstore.NewLocal(store, budget, quietLogger())
	require.NoError(t, err)

	for n := 0; n < 1200; n += 97 {
		rec := record.New()
		rec.Set("id", "k")
		rec.Set("payload", strings.Repeat("z", n))

		err := local.Write(context.Background(), "c", "k", rec)
		size, serr := docstore.Size(rec)
		require.NoError(t, serr)
		if err == nil {
			assert.LessOrEqual(t, size, budget, "written document over budget at n=%d", n)
		} else {
			var se *docstore.SizeExceeded
			require.True(t, errors.As(err, &se), "n=%d: %v", n, err)
			assert.Greater(t, size, budget)
		}
	}
}
