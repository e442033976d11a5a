package mimex

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// maxDepth bounds multipart nesting.
const maxDepth = 16

// Decode unpacks a blob built by Encode, or by any MIME mail client.
//
// The first inline text part found at any depth is the message. Line
// encoded bodies have their CRLF line endings turned into LF; base64 bodies
// are returned byte for byte. Every other leaf becomes an attachment;
// message/rfc822 parts are kept raw. Parts that fail to decode are dropped.
func Decode(blob []byte) (string, []File, error) {
	e, err := message.Read(bytes.NewReader(blob))
	if err != nil && !isRecoverable(err) {
		return "", nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if e == nil {
		return "", nil, ErrParse
	}

	d := &decoder{}
	d.walk(e, 0)

	if d.body == nil {
		return "", nil, fmt.Errorf("%w: no text body", ErrParse)
	}
	return *d.body, d.files, nil
}

// DecodeOrRaw is Decode that treats anything Decode rejects as a plain
// text message without attachments.
func DecodeOrRaw(blob []byte) (string, []File) {
	msg, files, err := Decode(blob)
	if err != nil {
		return string(blob), nil
	}
	return msg, files
}

type decoder struct {
	body  *string
	files []File
}

func (d *decoder) walk(e *message.Entity, depth int) {
	if mr := e.MultipartReader(); mr != nil {
		if depth >= maxDepth {
			return
		}
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil && (p == nil || !isRecoverable(err)) {
				// the multipart stream itself is broken, keep what we have
				return
			}
			if err != nil {
				continue
			}
			d.walk(p, depth+1)
		}
	}
	d.leaf(e)
}

func (d *decoder) leaf(e *message.Entity) {
	mediaType, typeParams, err := e.Header.ContentType()
	if err != nil {
		mediaType = rawMediaType(e.Header.Get("Content-Type"))
	}
	disp, dispParams, _ := e.Header.ContentDisposition()

	content, err := io.ReadAll(e.Body)
	if err != nil {
		return
	}

	if d.body == nil && disp != "attachment" && isText(mediaType) {
		s := string(content)
		if !strings.EqualFold(strings.TrimSpace(e.Header.Get("Content-Transfer-Encoding")), "base64") {
			s = strings.ReplaceAll(s, "\r\n", "\n")
		}
		d.body = &s
		return
	}

	name, typ := defaults(mediaType)
	if v := dispParams["filename"]; v != "" {
		name = v
	} else if v := typeParams["name"]; v != "" {
		name = v
	}
	if mediaType != "" {
		typ = mediaType
	}

	d.files = append(d.files, File{Filename: name, MimeType: typ, Content: content})
}

// rawMediaType salvages the media type of a Content-Type value that does not
// parse. Anything not shaped like type/subtype is treated as binary.
func rawMediaType(v string) string {
	mt, _, _ := strings.Cut(v, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	typ, sub, ok := strings.Cut(mt, "/")
	if !ok || typ == "" || sub == "" || strings.ContainsAny(mt, " \t\"") {
		return TypeBinary
	}
	return mt
}

func isText(mediaType string) bool {
	return mediaType == "" || mediaType == TypeText || mediaType == "text/html"
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
