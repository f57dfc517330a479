package migrate

import (
	"fmt"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

// site is one value reachable by a rewrite: a top-level field, an element
// of a top-level array, or a direct field of a mapping inside such an array.
type site struct {
	Field string
	Index int
	Inner string
	Value any
	set   func(v any)
}

// Name is the object name of the site under kind, e.g. "main",
// "sub" (index 2 → sub_2) or "receipt_0_image".
func (s site) Name(kind *record.Kind) (string, int) {
	alias := kind.StorageName(s.Field)
	if s.Inner != "" {
		return fmt.Sprintf("%s_%d_%s", alias, s.Index, s.Inner), blob.NoIndex
	}
	return alias, s.Index
}

func (s site) String() string {
	switch {
	case s.Inner != "":
		return fmt.Sprintf("%s[%d].%s", s.Field, s.Index, s.Inner)
	case s.Index != blob.NoIndex:
		return fmt.Sprintf("%s[%d]", s.Field, s.Index)
	default:
		return s.Field
	}
}

// walk visits every site of rec in field declaration order, then array
// index order, then inner field order.
func walk(rec *record.Record, fn func(s site)) {
	for _, f := range rec.Fields() {
		name := f.Name
		fn(site{Field: name, Index: blob.NoIndex, Value: f.Value, set: func(v any) { rec.Set(name, v) }})

		arr, ok := f.Value.([]any)
		if !ok {
			continue
		}
		for i, el := range arr {
			i := i
			fn(site{Field: name, Index: i, Value: el, set: func(v any) { arr[i] = v }})

			inner, ok := el.(*record.Record)
			if !ok {
				continue
			}
			for _, in := range inner.Fields() {
				innerName := in.Name
				if _, ok := in.Value.(string); !ok {
					continue
				}
				fn(site{Field: name, Index: i, Inner: innerName, Value: in.Value, set: func(v any) { inner.Set(innerName, v) }})
			}
		}
	}
}
