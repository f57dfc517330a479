package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key identifies a record in both the source and the destination store.
// Integer keys are held in their decimal form.
type Key string

func (k Key) String() string {
	return string(k)
}

// KeyOf converts a decoded key value into a Key. Fractional numbers and empty
// strings are rejected.
func KeyOf(v any) (Key, error) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", fmt.Errorf("record: empty key")
		}
		return Key(s), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Key(strconv.FormatInt(i, 10)), nil
		}
		return "", fmt.Errorf("record: key %s is not an integer", t)
	case int:
		return Key(strconv.Itoa(t)), nil
	case int64:
		return Key(strconv.FormatInt(t, 10)), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return "", fmt.Errorf("record: key %v is not an integer", t)
		}
		return Key(strconv.FormatInt(int64(t), 10)), nil
	case nil:
		return "", fmt.Errorf("record: null key")
	default:
		return "", fmt.Errorf("record: unsupported key type %T", v)
	}
}

// ParseKeys splits a comma separated list such as "160,157,78".
func ParseKeys(s string) []Key {
	var keys []Key
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keys = append(keys, Key(part))
	}
	return keys
}
