package lsp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cxxbridge/cxxbridge/internal/lsptest"
	"github.com/cxxbridge/cxxbridge/internal/rpc"
	"github.com/cxxbridge/cxxbridge/internal/transport"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *lsptest.Fake) {
	t.Helper()
	a, b := transport.NewMemoryPair()
	fake := lsptest.New()
	go fake.Serve(b)
	t.Cleanup(func() { a.Close(); b.Close() })
	return New(rpc.NewClient(a)), fake
}

func TestInitializeRoundTrip(t *testing.T) {
	client, fake := newTestClient(t)
	fake.OnRequest("initialize", func(params json.RawMessage) (interface{}, string) {
		return map[string]interface{}{
			"capabilities": map[string]interface{}{"positionEncoding": "utf-16"},
		}, ""
	})

	result, err := client.Initialize(context.Background(), "/workspace/root")
	require.NoError(t, err)
	require.Equal(t, "utf-16", result.Capabilities.PositionEncoding)
}

func TestHoverReturnsNilWhenNoHover(t *testing.T) {
	client, fake := newTestClient(t)
	fake.OnRequest("textDocument/hover", func(params json.RawMessage) (interface{}, string) {
		return nil, ""
	})

	hover, err := client.Hover(context.Background(), "file:///a.cpp", Position{Line: 1, Character: 2})
	require.NoError(t, err)
	require.Nil(t, hover)
}

func TestDefinitionReturnsLocations(t *testing.T) {
	client, fake := newTestClient(t)
	fake.OnRequest("textDocument/definition", func(params json.RawMessage) (interface{}, string) {
		return []Location{{URI: "file:///b.cpp", Range: Range{}}}, ""
	})

	locs, err := client.Definition(context.Background(), "file:///a.cpp", Position{})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "file:///b.cpp", locs[0].URI)
}

func TestResolveSymbolPositionFindsExactMatch(t *testing.T) {
	client, fake := newTestClient(t)
	fake.OnRequest("workspace/symbol", func(params json.RawMessage) (interface{}, string) {
		return []WorkspaceSymbol{
			{Name: "Widgetize", Location: Location{URI: "file:///other.cpp"}},
			{Name: "Widget", Location: Location{URI: "file:///widget.cpp"}},
		}, ""
	})

	loc, err := client.ResolveSymbolPosition(context.Background(), "Widget")
	require.NoError(t, err)
	require.Equal(t, "file:///widget.cpp", loc.URI)
}

func TestResolveSymbolPositionNoMatchErrors(t *testing.T) {
	client, fake := newTestClient(t)
	fake.OnRequest("workspace/symbol", func(params json.RawMessage) (interface{}, string) {
		return []WorkspaceSymbol{}, ""
	})

	_, err := client.ResolveSymbolPosition(context.Background(), "Missing")
	require.Error(t, err)
}

func TestOnProgressReceivesNotifications(t *testing.T) {
	client, fake := newTestClient(t)
	got := make(chan int, 1)
	client.OnProgress(func(params json.RawMessage) {
		var v struct {
			Current int `json:"current"`
		}
		json.Unmarshal(params, &v)
		got <- v.Current
	})

	require.NoError(t, fake.Notify("$/progress", map[string]int{"current": 2}))

	select {
	case v := <-got:
		require.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("progress notification not delivered")
	}
}
