package framing

import (
	"testing"

	"github.com/cxxbridge/cxxbridge/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestRoundTripSingleMessage(t *testing.T) {
	a, b := transport.NewMemoryPair()
	defer a.Close()
	defer b.Close()

	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.NoError(t, Write(a, payload))

	r := NewReader(b)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestRoundTripArbitrarySplit(t *testing.T) {
	a, b := transport.NewMemoryPair()
	defer a.Close()
	defer b.Close()

	payload := []byte(`{"jsonrpc":"2.0","id":2,"result":{"ok":true}}`)
	framed := Encode(payload)

	// Deliver the framed bytes in small, arbitrary chunks to exercise the
	// reader's tolerance for split headers and split bodies.
	go func() {
		for i := 0; i < len(framed); i += 3 {
			end := i + 3
			if end > len(framed) {
				end = len(framed)
			}
			a.Send(framed[i:end])
		}
	}()

	r := NewReader(b)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestMultipleHeadersArbitraryOrder(t *testing.T) {
	a, b := transport.NewMemoryPair()
	defer a.Close()
	defer b.Close()

	payload := []byte(`{"jsonrpc":"2.0","method":"$/progress"}`)
	raw := []byte("Content-Type: application/vscode-jsonrpc; charset=utf-8\r\nContent-Length: " +
		itoa(len(payload)) + "\r\n\r\n")
	raw = append(raw, payload...)
	require.NoError(t, a.Send(raw))

	r := NewReader(b)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestTwoMessagesBackToBack(t *testing.T) {
	a, b := transport.NewMemoryPair()
	defer a.Close()
	defer b.Close()

	p1 := []byte(`{"a":1}`)
	p2 := []byte(`{"b":2}`)
	require.NoError(t, Write(a, p1))
	require.NoError(t, Write(a, p2))

	r := NewReader(b)
	got1, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, p1, got1)

	got2, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, p2, got2)
}

func TestCleanEOFSurfacesAsErrClosed(t *testing.T) {
	a, b := transport.NewMemoryPair()
	require.NoError(t, a.Close())

	r := NewReader(b)
	_, err := r.ReadMessage()
	require.ErrorIs(t, err, ErrClosed)
}

func TestInvalidContentLengthRejected(t *testing.T) {
	a, b := transport.NewMemoryPair()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send([]byte("Content-Length: -5\r\n\r\n")))
	r := NewReader(b)
	_, err := r.ReadMessage()
	require.Error(t, err)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
