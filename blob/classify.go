// Package blob recognises binary payloads carried inline in record fields and
// turns them into upload targets.
package blob

import (
	"regexp"
	"strings"
)

// Class is the verdict of Classify for one field value.
type Class int

const (
	ClassPlain Class = iota
	ClassExternalURL
	ClassInlineBlob
)

func (c Class) String() string {
	switch c {
	case ClassExternalURL:
		return "external_url"
	case ClassInlineBlob:
		return "inline_blob"
	default:
		return "plain"
	}
}

// DefaultThreshold is the length above which a bare encoded string counts as
// a blob.
const DefaultThreshold = 1000

// sniffWindow is how much of a bare string is checked against the base64
// alphabet.
const sniffWindow = 100

var urlSchemes = []string{"https://", "http://", "gs://"}

var dataMarker = regexp.MustCompile(`^(?:[^|]+\|)?data:(?:[^;,]*;)*base64,`)

// Classify decides whether v is an external URL, an inline blob or plain
// data. Only strings can be anything other than plain. A bare string counts
// as a blob when it is longer than threshold and starts with base64 text;
// shorter base64-looking strings stay plain. Strings carrying a data: marker
// are blobs at any length.
func Classify(v any, threshold int) Class {
	s, ok := v.(string)
	if !ok || s == "" {
		return ClassPlain
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if IsURL(s) {
		return ClassExternalURL
	}
	if dataMarker.MatchString(s) {
		return ClassInlineBlob
	}
	if len(s) > threshold && looksEncoded(s) {
		return ClassInlineBlob
	}
	return ClassPlain
}

// IsURL reports whether s starts with a recognised URL scheme.
func IsURL(s string) bool {
	lower := strings.ToLower(s)
	for _, scheme := range urlSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

func looksEncoded(s string) bool {
	head := s
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	for i := 0; i < len(head); i++ {
		if !isBase64Char(head[i]) {
			return false
		}
	}
	return true
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+', c == '/', c == '=', c == '-', c == '_':
		return true
	}
	return false
}
