package envelope

// Arena is a growable byte buffer with a read cursor. It belongs to exactly
// one in-flight decode.
type Arena struct {
	buf []byte
	off int
}

// Append copies p onto the end of the buffer.
func (a *Arena) Append(p []byte) {
	a.buf = append(a.buf, p...)
}

// Len is the number of unread bytes.
func (a *Arena) Len() int {
	return len(a.buf) - a.off
}

// Peek returns the next n unread bytes without advancing.
func (a *Arena) Peek(n int) ([]byte, bool) {
	if a.Len() < n {
		return nil, false
	}
	return a.buf[a.off : a.off+n], true
}

// Next returns the next n unread bytes and advances past them.
func (a *Arena) Next(n int) ([]byte, bool) {
	p, ok := a.Peek(n)
	if ok {
		a.off += n
	}
	return p, ok
}

// Detach returns a copy of the unread bytes and releases the buffer.
func (a *Arena) Detach() []byte {
	rest := append([]byte(nil), a.buf[a.off:]...)
	a.buf = nil
	a.off = 0
	return rest
}
