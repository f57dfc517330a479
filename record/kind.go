package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type FieldType int

const (
	TypeAny FieldType = iota
	TypeString
	TypeNumber
	TypeBool
	TypeArray
	TypeObject
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "bool"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default:
		return "any"
	}
}

var (
	ErrKindNotFound = errors.New("record: kind not found")
	ErrKindInvalid  = errors.New("record: invalid kind")
)

// ValidationError reports a record that does not match its kind.
type ValidationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record: %s.%s: %s", e.Kind, e.Field, e.Reason)
}

// Kind describes one known entity of the application: where it is read
// from, where it is written to, and which fields it is known to carry.
// Fields not listed are accepted as-is.
type Kind struct {
	Name string

	// Collection is the destination document collection.
	Collection string
	// Table is the source SQLite table.
	Table string
	// ListPath and ItemPath are source API paths; ItemPath holds one %s for the key.
	ListPath string
	ItemPath string

	KeyField string
	Fields   map[string]FieldType

	// StoragePrefix is the first path segment of uploaded objects.
	StoragePrefix string
	// Aliases renames a field in object paths, e.g. image_url -> main.
	Aliases map[string]string
}

// Validate checks the record against the kind and returns its key.
func (k *Kind) Validate(r *Record) (Key, error) {
	keyField := k.KeyField
	if keyField == "" {
		keyField = "id"
	}
	raw, ok := r.Get(keyField)
	if !ok {
		return "", &ValidationError{Kind: k.Name, Field: keyField, Reason: "missing key"}
	}
	key, err := KeyOf(raw)
	if err != nil {
		return "", &ValidationError{Kind: k.Name, Field: keyField, Reason: err.Error()}
	}

	names := make([]string, 0, len(k.Fields))
	for name := range k.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := r.Get(name)
		if !ok || v == nil {
			continue
		}
		want := k.Fields[name]
		if !hasType(v, want) {
			return "", &ValidationError{
				Kind:   k.Name,
				Field:  name,
				Reason: fmt.Sprintf("want %s, got %T", want, v),
			}
		}
	}
	return key, nil
}

// StorageName is the name a field takes in an object path.
func (k *Kind) StorageName(field string) string {
	if alias, ok := k.Aliases[field]; ok && alias != "" {
		return alias
	}
	return field
}

func (k *Kind) ItemURLPath(key Key) string {
	return fmt.Sprintf(k.ItemPath, key)
}

func hasType(v any, t FieldType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case json.Number, int, int64, float64:
			return true
		}
		return false
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(*Record)
		return ok
	default:
		return true
	}
}

// Registry resolves kinds by name.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// DefaultRegistry returns a registry holding the application's entities.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range builtinKinds() {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(k *Kind) error {
	if k == nil || k.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrKindInvalid)
	}
	if strings.ContainsAny(k.Name, ":/") {
		return fmt.Errorf("%w: name %q cannot contain ':' or '/'", ErrKindInvalid, k.Name)
	}
	if k.Collection == "" {
		return fmt.Errorf("%w: %s has no collection", ErrKindInvalid, k.Name)
	}
	if k.ItemPath != "" && strings.Count(k.ItemPath, "%s") != 1 {
		return fmt.Errorf("%w: %s item path must hold exactly one %%s", ErrKindInvalid, k.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[k.Name] = k
	return nil
}

func (r *Registry) Lookup(name string) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKindNotFound, name)
	}
	return k, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinKinds() []*Kind {
	return []*Kind{
		{
			Name:          "specbook_item",
			Collection:    "specbook_items",
			Table:         "specbook_items",
			ListPath:      "/api/specbook/library/meta",
			ItemPath:      "/api/specbook/item/%s",
			KeyField:      "id",
			StoragePrefix: "specbook",
			Fields: map[string]FieldType{
				"name":        TypeString,
				"category":    TypeString,
				"brand":       TypeString,
				"description": TypeString,
				"image_url":   TypeString,
				"main_image":  TypeString,
				"spec_image":  TypeString,
				"sub_images":  TypeArray,
			},
			Aliases: map[string]string{
				"image_url":  "main",
				"sub_images": "sub",
			},
		},
		{
			Name:          "execution_record",
			Collection:    "execution_records",
			Table:         "execution_records",
			ListPath:      "/api/execution",
			ItemPath:      "/api/execution/%s",
			KeyField:      "id",
			StoragePrefix: "execution_records",
			Fields: map[string]FieldType{
				"project_name":  TypeString,
				"item_name":     TypeString,
				"date":          TypeString,
				"material_cost": TypeNumber,
				"labor_cost":    TypeNumber,
				"total_amount":  TypeNumber,
				"images":        TypeArray,
				"receipts":      TypeArray,
			},
			Aliases: map[string]string{
				"images":   "image",
				"receipts": "receipt",
			},
		},
		{
			Name:          "project",
			Collection:    "projects",
			Table:         "projects",
			ListPath:      "/api/projects",
			ItemPath:      "/api/projects/%s",
			KeyField:      "id",
			StoragePrefix: "projects",
			Fields: map[string]FieldType{
				"name":       TypeString,
				"client":     TypeString,
				"address":    TypeString,
				"status":     TypeString,
				"start_date": TypeString,
				"end_date":   TypeString,
			},
		},
		{
			Name:          "payment",
			Collection:    "payment_requests",
			Table:         "payment_requests",
			ListPath:      "/api/payments",
			ItemPath:      "/api/payments/%s",
			KeyField:      "id",
			StoragePrefix: "payments",
			Fields: map[string]FieldType{
				"description": TypeString,
				"amount":      TypeNumber,
				"status":      TypeString,
				"vendor_name": TypeString,
				"receipt_url": TypeString,
				"images":      TypeArray,
			},
			Aliases: map[string]string{
				"receipt_url": "receipt",
				"images":      "image",
			},
		},
		{
			Name:          "site_log",
			Collection:    "site_logs",
			Table:         "site_logs",
			ListPath:      "/api/site-logs",
			ItemPath:      "/api/site-logs/%s",
			KeyField:      "id",
			StoragePrefix: "site_logs",
			Fields: map[string]FieldType{
				"project": TypeString,
				"date":    TypeString,
				"notes":   TypeString,
				"images":  TypeArray,
			},
			Aliases: map[string]string{
				"images": "image",
			},
		},
		{
			Name:          "quote_inquiry",
			Collection:    "quote_inquiries",
			Table:         "quote_inquiries",
			ListPath:      "/api/quote-inquiries",
			ItemPath:      "/api/quote-inquiries/%s",
			KeyField:      "id",
			StoragePrefix: "quote_inquiries",
			Fields: map[string]FieldType{
				"name":         TypeString,
				"phone":        TypeString,
				"email":        TypeString,
				"message":      TypeString,
				"project_type": TypeString,
				"attachments":  TypeArray,
			},
			Aliases: map[string]string{
				"attachments": "attachment",
			},
		},
		{
			Name:          "contractor",
			Collection:    "contractors",
			Table:         "contractors",
			ListPath:      "/api/contractors",
			ItemPath:      "/api/contractors/%s",
			KeyField:      "id",
			StoragePrefix: "contractors",
			Fields: map[string]FieldType{
				"name":     TypeString,
				"position": TypeString,
				"phone":    TypeString,
			},
		},
	}
}
