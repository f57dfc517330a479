package docstore

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/pkg/errors"
)

// skipFields never reach the destination.
var skipFields = map[string]bool{"_id": true}

// Encode converts rec to the destination document body:
// {"fields": {name: typed value}} with field order kept.
func Encode(rec *record.Record) *record.Record {
	doc := record.New()
	doc.Set("fields", encodeFields(rec))
	return doc
}

// EncodeJSON is Encode rendered to the bytes that are sent.
func EncodeJSON(rec *record.Record) ([]byte, error) {
	body, err := json.Marshal(Encode(rec))
	if err != nil {
		return nil, errors.Wrap(err, "encode document")
	}
	return body, nil
}

// Size is the encoded size of rec in bytes.
func Size(rec *record.Record) (int, error) {
	body, err := EncodeJSON(rec)
	if err != nil {
		return 0, err
	}
	return len(body), nil
}

func encodeFields(rec *record.Record) *record.Record {
	fields := record.New()
	for _, f := range rec.Fields() {
		if skipFields[f.Name] {
			continue
		}
		fields.Set(f.Name, encodeValue(f.Value))
	}
	return fields
}

func typed(name string, v any) *record.Record {
	return record.FromFields(record.Field{Name: name, Value: v})
}

func encodeValue(v any) *record.Record {
	switch val := v.(type) {
	case nil:
		return typed("nullValue", nil)
	case string:
		return typed("stringValue", val)
	case bool:
		return typed("booleanValue", val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return typed("integerValue", strconv.FormatInt(i, 10))
		}
		f, err := val.Float64()
		if err != nil {
			return typed("stringValue", val.String())
		}
		return encodeFloat(f)
	case int:
		return typed("integerValue", strconv.Itoa(val))
	case int64:
		return typed("integerValue", strconv.FormatInt(val, 10))
	case float64:
		return encodeFloat(val)
	case []any:
		values := make([]any, 0, len(val))
		for _, item := range val {
			values = append(values, encodeValue(item))
		}
		return typed("arrayValue", typed("values", values))
	case *record.Record:
		return typed("mapValue", typed("fields", encodeFields(val)))
	case map[string]any:
		names := make([]string, 0, len(val))
		for k := range val {
			names = append(names, k)
		}
		sort.Strings(names)
		fields := record.New()
		for _, k := range names {
			fields.Set(k, encodeValue(val[k]))
		}
		return typed("mapValue", typed("fields", fields))
	default:
		return typed("stringValue", fmt.Sprint(val))
	}
}

func encodeFloat(f float64) *record.Record {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return typed("integerValue", strconv.FormatInt(int64(f), 10))
	}
	return typed("doubleValue", f)
}

// Decode turns a destination document body back into a record.
func Decode(doc *record.Record) (*record.Record, error) {
	raw, ok := doc.Get("fields")
	if !ok || raw == nil {
		return record.New(), nil
	}
	fields, ok := raw.(*record.Record)
	if !ok {
		return nil, fmt.Errorf("docstore: fields is %T, not an object", raw)
	}
	return decodeFields(fields)
}

func decodeFields(fields *record.Record) (*record.Record, error) {
	out := record.New()
	for _, f := range fields.Fields() {
		typedVal, ok := f.Value.(*record.Record)
		if !ok {
			return nil, fmt.Errorf("docstore: field %s is %T, not a typed value", f.Name, f.Value)
		}
		v, err := decodeValue(typedVal)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.Name)
		}
		out.Set(f.Name, v)
	}
	return out, nil
}

func decodeValue(tv *record.Record) (any, error) {
	fields := tv.Fields()
	if len(fields) != 1 {
		return nil, fmt.Errorf("docstore: typed value has %d members", len(fields))
	}
	name, v := fields[0].Name, fields[0].Value
	switch name {
	case "nullValue":
		return nil, nil
	case "stringValue", "timestampValue", "referenceValue":
		s, _ := v.(string)
		return s, nil
	case "booleanValue":
		b, _ := v.(bool)
		return b, nil
	case "integerValue":
		switch n := v.(type) {
		case string:
			return json.Number(n), nil
		case json.Number:
			return n, nil
		}
		return nil, fmt.Errorf("docstore: integerValue is %T", v)
	case "doubleValue":
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("docstore: doubleValue is %T", v)
		}
		return n, nil
	case "arrayValue":
		arr, _ := v.(*record.Record)
		if arr == nil {
			return []any{}, nil
		}
		rawValues, _ := arr.Get("values")
		items, _ := rawValues.([]any)
		out := make([]any, 0, len(items))
		for _, item := range items {
			itemTV, ok := item.(*record.Record)
			if !ok {
				return nil, fmt.Errorf("docstore: array item is %T", item)
			}
			dv, err := decodeValue(itemTV)
			if err != nil {
				return nil, err
			}
			out = append(out, dv)
		}
		return out, nil
	case "mapValue":
		m, _ := v.(*record.Record)
		if m == nil {
			return record.New(), nil
		}
		inner, _ := m.Get("fields")
		innerFields, _ := inner.(*record.Record)
		if innerFields == nil {
			return record.New(), nil
		}
		return decodeFields(innerFields)
	}
	return nil, fmt.Errorf("docstore: unknown value type %s", name)
}
