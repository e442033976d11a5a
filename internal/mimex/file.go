// Package mimex packs a text message and its attachments into one MIME
// multipart blob before sealing, and unpacks it again after unsealing.
package mimex

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

// ErrParse is returned when a blob is not a MIME message or has no text body.
var ErrParse = errors.New("mime parse error")

// Default content types and file names for parts that carry none.
const (
	TypeText    = "text/plain"
	TypeBinary  = "application/octet-stream"
	TypeMessage = "message/rfc822"

	NameText    = "attachment.txt"
	NameBinary  = "attachment.bin"
	NameMessage = "attachment.eml"
)

// File is an attachment.
type File struct {
	Filename string
	MimeType string
	Content  []byte
}

// guessType returns the bare media type registered for the extension of name.
func guessType(name string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if t == "" {
		return TypeBinary
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return TypeBinary
}

// defaults picks the fallback name and type for a part by its media type.
func defaults(mediaType string) (name, typ string) {
	switch {
	case mediaType == TypeMessage:
		return NameMessage, TypeMessage
	case mediaType == "" || strings.HasPrefix(mediaType, "text/"):
		return NameText, TypeText
	default:
		return NameBinary, TypeBinary
	}
}
