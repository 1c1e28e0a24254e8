// Package framing implements the LS-protocol message envelope: a
// Content-Length-prefixed header block terminated by a blank line,
// followed by exactly N bytes of UTF-8 JSON (spec §4.1, C2).
package framing

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cxxbridge/cxxbridge/internal/transport"
)

// ErrClosed is returned by Reader.ReadMessage when the underlying
// transport reached a clean EOF before a new message began. It is a
// terminal event, not a protocol error (spec §4.1: "must surface
// partial-read EOF as an explicit terminal event, not an error").
var ErrClosed = errors.New("framing: transport closed")

// Encode wraps payload in a Content-Length header.
func Encode(payload []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(payload))
	buf.Write(payload)
	return buf.Bytes()
}

// Reader reads framed messages off a Transport, tolerating arbitrary
// header ordering, multiple headers before the blank line, and chunk
// boundaries that split a header or body at any byte offset.
type Reader struct {
	t   transport.Transport
	buf *bufio.Reader
}

// transportReader adapts a Transport's chunked Receive into an io.Reader
// so bufio.Reader can pull bytes one at a time regardless of how the
// underlying chunks were split.
type transportReader struct {
	t       transport.Transport
	pending []byte
}

func (r *transportReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		chunk, ok, err := r.t.Receive()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// NewReader builds a framing.Reader over t.
func NewReader(t transport.Transport) *Reader {
	return &Reader{t: t, buf: bufio.NewReader(&transportReader{t: t})}
}

// ReadMessage blocks for the next complete framed message and returns its
// JSON body. Returns ErrClosed on clean EOF before any header byte of a new
// message arrived.
func (r *Reader) ReadMessage() ([]byte, error) {
	length := -1
	sawAnyHeaderByte := false

	for {
		line, err := r.buf.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if !sawAnyHeaderByte && line == "" {
					return nil, ErrClosed
				}
				return nil, fmt.Errorf("framing: unexpected eof in headers: %w", ErrClosed)
			}
			return nil, fmt.Errorf("framing: read header: %w", err)
		}
		sawAnyHeaderByte = true
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break // blank line: end of headers
		}
		idx := strings.IndexByte(trimmed, ':')
		if idx < 0 {
			return nil, fmt.Errorf("framing: malformed header %q", trimmed)
		}
		name := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		if strings.EqualFold(name, "Content-Length") {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("framing: invalid Content-Length %q", value)
			}
			length = n
		}
		// Other headers (e.g. Content-Type) are tolerated and ignored.
	}

	if length < 0 {
		return nil, errors.New("framing: missing Content-Length header")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.buf, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("framing: truncated body: %w", ErrClosed)
		}
		return nil, fmt.Errorf("framing: read body: %w", err)
	}
	return body, nil
}

// Write frames payload and sends it over t.
func Write(t transport.Transport, payload []byte) error {
	return t.Send(Encode(payload))
}
