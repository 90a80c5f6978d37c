package teeworlds

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// reader is a forward-only cursor over a received datagram.
type reader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

// advance skips n bytes.
func (r *reader) advance(n int) error {
	if r.off+n > len(r.buf) {
		r.off = len(r.buf)
		return fmt.Errorf("%w: need %d bytes at offset %d", ErrMissingField, n, r.off)
	}
	r.off += n
	return nil
}

// tag reads 4 raw bytes.
func (r *reader) tag() ([]byte, error) {
	if r.off+4 > len(r.buf) {
		return nil, fmt.Errorf("%w: packet type at offset %d", ErrMissingField, r.off)
	}
	t := r.buf[r.off : r.off+4]
	r.off += 4
	return t, nil
}

// next returns the bytes up to the next NUL and consumes the NUL.
// A trailing field without terminator is returned as is.
func (r *reader) next() ([]byte, error) {
	if r.off >= len(r.buf) {
		return nil, ErrMissingField
	}
	rest := r.buf[r.off:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		r.off = len(r.buf)
		return rest, nil
	}
	r.off += i + 1
	return rest[:i], nil
}

// str reads the next field as text. The result is copied out of the buffer.
func (r *reader) str() (string, error) {
	field, err := r.next()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(field) {
		return "", fmt.Errorf("%w: %q", ErrDecode, field)
	}
	return string(field), nil
}

// int reads the next field as a signed decimal.
func (r *reader) int() (int, error) {
	s, err := r.str()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParse, s)
	}
	return int(n), nil
}

// remaining reports unread bytes.
func (r *reader) remaining() int {
	return len(r.buf) - r.off
}
