package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

// HTTP reads from the application's data API with a bearer token.
type HTTP struct {
	client *client.Client
	logger *slog.Logger
}

var _ Reader = &HTTP{}

func NewHTTP(c *client.Client, logger *slog.Logger) (*HTTP, error) {
	if c == nil {
		return nil, ErrClientMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{client: c, logger: logger.WithGroup("source")}, nil
}

// List fetches the kind's list path. The answer is an array of objects, or
// an object wrapping one under "data" or "items". Entries without a usable
// key are skipped.
func (h *HTTP) List(ctx context.Context, kind *record.Kind) ([]record.Key, error) {
	if kind.ListPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoListPath, kind.Name)
	}
	body, err := h.client.Do(ctx, client.Request{Method: http.MethodGet, Path: kind.ListPath})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}
	v, err := record.DecodeValue(body)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}
	items, err := listItems(v)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}

	field := keyField(kind)
	keys := make([]record.Key, 0, len(items))
	for i, item := range items {
		rec, ok := item.(*record.Record)
		if !ok {
			h.logger.Warn("skipping non-object list entry", "kind", kind.Name, "index", i)
			continue
		}
		raw, _ := rec.Get(field)
		key, err := record.KeyOf(raw)
		if err != nil {
			h.logger.Warn("skipping list entry without key", "kind", kind.Name, "index", i, "error", err)
			continue
		}
		keys = append(keys, key)
	}
	return dedupe(keys), nil
}

func listItems(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case *record.Record:
		for _, name := range []string{"data", "items"} {
			if inner, ok := t.Get(name); ok {
				if arr, ok := inner.([]any); ok {
					return arr, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("unexpected list payload %T", v)
}

func (h *HTTP) Read(ctx context.Context, kind *record.Kind, key record.Key) (*record.Record, error) {
	if kind.ItemPath == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoItemPath, kind.Name)
	}
	path := strings.Replace(kind.ItemPath, "%s", url.PathEscape(key.String()), 1)
	body, err := h.client.Do(ctx, client.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		if client.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind.Name, key)
		}
		return nil, fmt.Errorf("read %s %s: %w", kind.Name, key, err)
	}
	rec, err := record.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", kind.Name, key, err)
	}
	if err := validate(kind, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
