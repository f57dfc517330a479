package blob

import (
	"fmt"
	"strings"
)

// NoIndex marks a target for a scalar field rather than an array element.
const NoIndex = -1

// Target is where one blob is stored: bucket, object path and media type.
type Target struct {
	Bucket    string
	Path      string
	MediaType string
}

// TargetPath builds "<prefix>/<key>/<name>[_<index>].<ext>". The same inputs
// always give the same path, so re-running a pass overwrites the same object.
func TargetPath(prefix, key, name string, index int, ext string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(segment(prefix))
		b.WriteByte('/')
	}
	b.WriteString(segment(key))
	b.WriteByte('/')
	b.WriteString(segment(name))
	if index != NoIndex {
		fmt.Fprintf(&b, "_%d", index)
	}
	if ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}

func segment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		return "_"
	}
	return s
}
