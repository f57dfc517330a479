package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
)

// Object is what a Memory uploader holds for one path.
type Object struct {
	MediaType string
	Data      []byte
}

// Memory keeps uploads in process. Returned URLs use the gs:// scheme so a
// rewritten record classifies them as external.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object

	// Fail, when set, is consulted before every upload; a non-nil result
	// fails that upload.
	Fail func(target blob.Target) error
}

var _ Uploader = &Memory{}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Upload(ctx context.Context, target blob.Target, data []byte) (string, error) {
	if err := validate(target); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", &UploadError{Bucket: target.Bucket, Path: target.Path, Err: err}
	}
	if m.Fail != nil {
		if err := m.Fail(target); err != nil {
			return "", &UploadError{Bucket: target.Bucket, Path: target.Path, Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key(target)] = Object{MediaType: target.MediaType, Data: append([]byte(nil), data...)}
	return "gs://" + key(target), nil
}

// Get returns the object stored at bucket/path.
func (m *Memory) Get(bucket, path string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+path]
	return obj, ok
}

// Paths lists every stored bucket/path in order.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func key(target blob.Target) string {
	return target.Bucket + "/" + target.Path
}
