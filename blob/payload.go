package blob

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNotBase64    = errors.New("blob: data URI is not base64 encoded")
	ErrUndecodable  = errors.New("blob: payload is not valid base64")
	ErrEmptyPayload = errors.New("blob: payload is empty")
)

const OctetStream = "application/octet-stream"

// Payload is a decoded inline blob.
type Payload struct {
	// Filename comes from a "name.pdf|data:..." composite, if any.
	Filename  string
	MediaType string
	// Tagged is true when MediaType came from the value rather than sniffing.
	Tagged bool
	Data   []byte
}

// Parse decodes the inline encodings found in the data: a data: URI, a
// filename|data: composite, or bare base64 (standard or URL alphabet,
// padded or not).
func Parse(s string) (*Payload, error) {
	p := &Payload{}
	rest := s
	if i := strings.Index(s, "|data:"); i > 0 {
		p.Filename = s[:i]
		rest = s[i+1:]
	}

	encoded := rest
	if strings.HasPrefix(rest, "data:") {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			return nil, ErrNotBase64
		}
		header := rest[len("data:"):comma]
		params := strings.Split(header, ";")
		if params[len(params)-1] != "base64" {
			return nil, ErrNotBase64
		}
		if mt := strings.TrimSpace(params[0]); mt != "" && mt != "base64" {
			p.MediaType = strings.ToLower(mt)
			p.Tagged = true
		}
		encoded = rest[comma+1:]
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	p.Data = data
	if p.MediaType == "" {
		p.MediaType = Sniff(data)
	}
	return p, nil
}

// Extension picks the file extension for an uploaded object.
func (p *Payload) Extension() string {
	return Extension(p.MediaType, p.Filename)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, ErrUndecodable
}

type signature struct {
	magic     []byte
	mediaType string
}

var signatures = []signature{
	{[]byte("%PDF"), "application/pdf"},
	{[]byte{0xFF, 0xD8, 0xFF}, "image/jpeg"},
	{[]byte{0x89, 0x50, 0x4E, 0x47}, "image/png"},
}

// Sniff matches the leading bytes against the signature table.
func Sniff(data []byte) string {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.mediaType
		}
	}
	return OctetStream
}

var extensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"application/pdf": "pdf",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
	"application/vnd.ms-excel": "xls",
}

// Extension prefers the extension of filename, then the media type table,
// and falls back to "bin".
func Extension(mediaType, filename string) string {
	if filename != "" {
		if ext := strings.TrimPrefix(path.Ext(filename), "."); ext != "" {
			return strings.ToLower(ext)
		}
	}
	if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return "bin"
}

// String describes the payload without its bytes.
func (p *Payload) String() string {
	return fmt.Sprintf("%s (%d bytes)", p.MediaType, len(p.Data))
}
