package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cxxbridge/cxxbridge/internal/framing"
	"github.com/cxxbridge/cxxbridge/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeServer answers every request it receives on its side of a memory
// transport pair, echoing params back as the result under key "echo".
type fakeServer struct {
	t transport.Transport
}

func (s *fakeServer) serve(handle func(method string, id json.RawMessage, params json.RawMessage)) {
	r := framing.NewReader(s.t)
	for {
		raw, err := r.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.Method == "" {
			continue
		}
		handle(env.Method, derefID(env.ID), env.Params)
	}
}

func derefID(id *json.RawMessage) json.RawMessage {
	if id == nil {
		return nil
	}
	return *id
}

func (s *fakeServer) reply(id json.RawMessage, result interface{}) {
	raw, _ := json.Marshal(result)
	env := envelope{JSONRPC: jsonrpcVersion, ID: &id, Result: raw}
	body, _ := json.Marshal(env)
	framing.Write(s.t, body)
}

func (s *fakeServer) replyErr(id json.RawMessage, code int, msg string) {
	env := envelope{JSONRPC: jsonrpcVersion, ID: &id, Error: &RespError{Code: code, Message: msg}}
	body, _ := json.Marshal(env)
	framing.Write(s.t, body)
}

func (s *fakeServer) notify(method string, params interface{}) {
	raw, _ := json.Marshal(params)
	env := envelope{JSONRPC: jsonrpcVersion, Method: method, Params: raw}
	body, _ := json.Marshal(env)
	framing.Write(s.t, body)
}

func TestCallRoundTrip(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)
	defer client.Close()
	server := &fakeServer{t: b}
	go server.serve(func(method string, id json.RawMessage, params json.RawMessage) {
		if id != nil {
			server.reply(id, map[string]json.RawMessage{"echo": params})
		}
	})

	var result struct {
		Echo map[string]string `json:"echo"`
	}
	err := client.Call(context.Background(), "ping", map[string]string{"x": "1"}, &result)
	require.NoError(t, err)
	require.Equal(t, "1", result.Echo["x"])
}

func TestConcurrentCallsRouteToCorrectWaiter(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)
	defer client.Close()
	server := &fakeServer{t: b}
	go server.serve(func(method string, id json.RawMessage, params json.RawMessage) {
		if id != nil {
			server.reply(id, params)
		}
	})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var got int
			err := client.Call(context.Background(), "identity", i, &got)
			require.NoError(t, err)
			require.Equal(t, i, got)
		}(i)
	}
	wg.Wait()
}

func TestCancellationDropsWaiterWithoutLeak(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)
	defer client.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Call(ctx, "slow", nil, nil)
	require.Error(t, err)

	client.mu.Lock()
	n := len(client.pending)
	client.mu.Unlock()
	require.Equal(t, 0, n)
}

func TestLateResponseAfterCancellationIsDiscarded(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)
	defer client.Close()
	server := &fakeServer{t: b}

	var seenID json.RawMessage
	var mu sync.Mutex
	go server.serve(func(method string, id json.RawMessage, params json.RawMessage) {
		if method == "noop" {
			server.reply(id, "ok")
			return
		}
		mu.Lock()
		seenID = id
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := client.Call(ctx, "slow", nil, nil)
	require.Error(t, err)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	id := seenID
	mu.Unlock()
	require.NotNil(t, id)
	server.reply(id, "too-late")

	// A second, unrelated call must still succeed: the stale response must
	// not have corrupted the pending table.
	var out string
	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	callErr := client.Call(callCtx, "noop", nil, &out)
	require.NoError(t, callErr)
	require.Equal(t, "ok", out)
}

func TestNotificationDispatch(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)
	defer client.Close()

	received := make(chan int, 1)
	client.OnNotification("$/progress", func(params json.RawMessage) {
		var v struct {
			Current int `json:"current"`
		}
		json.Unmarshal(params, &v)
		received <- v.Current
	})

	server := &fakeServer{t: b}
	server.notify("$/progress", map[string]int{"current": 3})

	select {
	case v := <-received:
		require.Equal(t, 3, v)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestConnectionFailureFailsAllPendingAndFutureCalls(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Call(context.Background(), "neverAnswered", nil, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close()) // peer hangs up -> clean EOF -> protocol-level terminal failure

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("pending call never failed after connection loss")
	}

	err := client.Call(context.Background(), "afterClose", nil, nil)
	require.Error(t, err)
}

func TestServerInitiatedRequestIsAnswered(t *testing.T) {
	a, b := transport.NewMemoryPair()
	client := NewClient(a)
	defer client.Close()

	client.OnRequest("workspace/configuration", func(params json.RawMessage) (interface{}, error) {
		return []string{"value"}, nil
	})

	reader := framing.NewReader(b)
	idRaw := json.RawMessage(fmt.Sprintf("%d", 1))
	env := envelope{JSONRPC: jsonrpcVersion, ID: &idRaw, Method: "workspace/configuration"}
	body, _ := json.Marshal(env)
	require.NoError(t, framing.Write(b, body))

	raw, err := reader.ReadMessage()
	require.NoError(t, err)
	var resp envelope
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Nil(t, resp.Error)
	var result []string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, []string{"value"}, result)
}
