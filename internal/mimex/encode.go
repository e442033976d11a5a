package mimex

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
)

// BoundaryLength is the number of characters in a generated boundary.
const BoundaryLength = 40

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Encode builds a multipart/mixed blob: the message as a text part followed by
// one base64 part per attachment. The text part is quoted-printable unless the
// message holds a carriage return, which quoted-printable would turn into a
// line break; such messages are sent base64 so Decode returns them unchanged.
func Encode(msg string, attachments []File, rng io.Reader) ([]byte, error) {
	boundary, err := newBoundary(rng)
	if err != nil {
		return nil, err
	}

	var h message.Header
	h.Set("MIME-Version", "1.0")
	h.SetContentType("multipart/mixed", map[string]string{"boundary": boundary})

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	var th message.Header
	th.SetContentType(TypeText, map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", textEncoding(msg))
	if err := writePart(w, th, []byte(msg)); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}

	for _, f := range attachments {
		typ := f.MimeType
		if typ == "" {
			typ = guessType(f.Filename)
		}

		var ah message.Header
		ah.SetContentType(typ, nil)
		ah.SetContentDisposition("attachment", map[string]string{"filename": f.Filename})
		ah.Set("Content-Transfer-Encoding", "base64")
		if err := writePart(w, ah, f.Content); err != nil {
			return nil, fmt.Errorf("write attachment %q: %w", f.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func textEncoding(msg string) string {
	if strings.ContainsRune(msg, '\r') {
		return "base64"
	}
	return "quoted-printable"
}

func writePart(w *message.Writer, h message.Header, body []byte) error {
	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := pw.Write(body); err != nil {
		return err
	}
	return pw.Close()
}

func newBoundary(rng io.Reader) (string, error) {
	out := make([]byte, 0, BoundaryLength)
	var buf [BoundaryLength]byte
	for len(out) < BoundaryLength {
		if _, err := io.ReadFull(rng, buf[:]); err != nil {
			return "", fmt.Errorf("read randomness: %w", err)
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 below 256
			if b >= 248 {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == BoundaryLength {
				break
			}
		}
	}
	return string(out), nil
}
