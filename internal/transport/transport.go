// Package transport implements the bidirectional byte-stream exchange
// (spec §4.1, C1) that the framing and RPC layers sit on top of.
package transport

import (
	"bufio"
	"io"
	"sync"
)

// Transport is a raw byte-stream channel. It makes no assumption about
// message framing; that is the framing package's job.
type Transport interface {
	// Send writes b in full or returns an error.
	Send(b []byte) error
	// Receive blocks for the next chunk of bytes. ok is false on a clean
	// EOF (the peer closed its side); err is non-nil only on a genuine
	// I/O failure.
	Receive() (b []byte, ok bool, err error)
	Close() error
	IsConnected() bool
}

// stdio is the concrete Transport for a child process's stdout/stdin; the
// component session builds one around the pipes that process.Spawn
// returns.
type stdio struct {
	mu        sync.Mutex
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	closeOnce sync.Once
	closed    bool
	closeErr  error
	closeFn   func() error
}

// NewStdio builds a Transport from a spawned process's stdin writer and
// stdout reader. closeFn additionally releases whatever owns the pipes
// (typically the process handle itself); it may be nil.
func NewStdio(stdin io.WriteCloser, stdout io.Reader, closeFn func() error) Transport {
	return &stdio{
		stdin:   stdin,
		stdout:  bufio.NewReaderSize(stdout, 64*1024),
		closeFn: closeFn,
	}
}

func (t *stdio) Send(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	_, err := t.stdin.Write(b)
	return err
}

func (t *stdio) Receive() ([]byte, bool, error) {
	buf := make([]byte, 64*1024)
	n, err := t.stdout.Read(buf)
	if n > 0 {
		return buf[:n], true, nil
	}
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (t *stdio) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		var errs []error
		if err := t.stdin.Close(); err != nil {
			errs = append(errs, err)
		}
		if t.closeFn != nil {
			if err := t.closeFn(); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			t.closeErr = errs[0]
		}
	})
	return t.closeErr
}

func (t *stdio) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// memory is the in-memory Transport used by tests (spec §4.1: "an
// in-memory transport is provided for tests").
type memory struct {
	mu     sync.Mutex
	toPeer chan []byte
	toSelf chan []byte
	closed bool
}

// NewMemoryPair builds two linked in-memory transports: whatever is sent on
// one arrives, unmodified, as a chunk on the other's Receive.
func NewMemoryPair() (Transport, Transport) {
	a2b := make(chan []byte, 256)
	b2a := make(chan []byte, 256)
	a := &memory{toPeer: a2b, toSelf: b2a}
	b := &memory{toPeer: b2a, toSelf: a2b}
	return a, b
}

func (m *memory) Send(b []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return io.ErrClosedPipe
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	m.toPeer <- cp
	return nil
}

func (m *memory) Receive() ([]byte, bool, error) {
	b, ok := <-m.toSelf
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (m *memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.toPeer)
	return nil
}

func (m *memory) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}
