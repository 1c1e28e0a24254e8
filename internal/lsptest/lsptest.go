// Package lsptest provides an in-process fake analyzer that speaks real
// LS-protocol framing over an in-memory transport, so the lsp and session
// packages can be exercised without spawning a real clangd binary. It sits
// below rpc in the import graph (framing/transport only), which is why
// rpc's own tests drive a small local fake instead of importing this
// package (grounded on original_source's src/clangd/testing.rs and
// src/lsp_v2/testing.rs scriptable fake analyzer).
package lsptest

import (
	"encoding/json"
	"sync"

	"github.com/cxxbridge/cxxbridge/internal/framing"
	"github.com/cxxbridge/cxxbridge/internal/transport"
)

type inbound struct {
	ID     *json.RawMessage
	Method string
	Params json.RawMessage
}

// Handler answers one request method with a result (or an error message).
type Handler func(params json.RawMessage) (result interface{}, errMsg string)

// Fake is a scriptable fake analyzer. Register handlers with OnRequest,
// then call Serve with the server-side end of a transport.NewMemoryPair.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	log      []inbound

	t transport.Transport
}

// New creates a Fake with no handlers registered; unregistered methods
// receive an empty-result response by default (most tests only care about
// a subset of the protocol).
func New() *Fake {
	return &Fake{handlers: make(map[string]Handler)}
}

// OnRequest registers the handler invoked for method.
func (f *Fake) OnRequest(method string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

// Requests returns every request/notification observed so far, in order.
func (f *Fake) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.log))
	for i, m := range f.log {
		out[i] = m.Method
	}
	return out
}

// Serve runs the fake's request loop over t until the transport closes. It
// blocks; call it in a goroutine.
func (f *Fake) Serve(t transport.Transport) {
	f.t = t
	reader := framing.NewReader(t)
	for {
		raw, err := reader.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			ID     *json.RawMessage `json:"id,omitempty"`
			Method string           `json:"method,omitempty"`
			Params json.RawMessage  `json:"params,omitempty"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.Method == "" {
			continue // a response to something we sent; fakes don't issue requests yet
		}

		f.mu.Lock()
		f.log = append(f.log, inbound{ID: env.ID, Method: env.Method, Params: env.Params})
		h := f.handlers[env.Method]
		f.mu.Unlock()

		if env.ID == nil {
			continue // notification: nothing to answer
		}

		var result interface{} = map[string]interface{}{}
		var errMsg string
		if h != nil {
			result, errMsg = h(env.Params)
		}
		f.respond(*env.ID, result, errMsg)
	}
}

func (f *Fake) respond(id json.RawMessage, result interface{}, errMsg string) {
	type respError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	env := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  interface{}     `json:"result,omitempty"`
		Error   *respError      `json:"error,omitempty"`
	}{JSONRPC: "2.0", ID: id}
	if errMsg != "" {
		env.Error = &respError{Code: -32000, Message: errMsg}
	} else {
		env.Result = result
	}
	body, _ := json.Marshal(env)
	framing.Write(f.t, body)
}

// Notify sends a notification from the fake to the client (e.g.
// $/progress updates driving C10's progress monitor).
func (f *Fake) Notify(method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	env := struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}{JSONRPC: "2.0", Method: method, Params: raw}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return framing.Write(f.t, body)
}
