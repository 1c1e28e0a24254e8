package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPairRoundTrip(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	require.True(t, a.IsConnected())
	require.NoError(t, a.Send([]byte("hello")))

	got, ok, err := b.Receive()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
}

func TestMemoryPairCloseSurfacesEOF(t *testing.T) {
	a, b := NewMemoryPair()
	require.NoError(t, a.Close())
	require.False(t, a.IsConnected())

	_, ok, err := b.Receive()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemorySendAfterCloseFails(t *testing.T) {
	a, b := NewMemoryPair()
	defer b.Close()
	require.NoError(t, a.Close())
	require.Error(t, a.Send([]byte("x")))
}
