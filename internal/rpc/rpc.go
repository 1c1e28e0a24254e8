// Package rpc implements JSON-RPC 2.0 request/response correlation over a
// framed byte stream (spec §4.1, C4): monotonic request IDs, a
// single-consumer pending-request table, and notification dispatch by
// method name.
//
// Grounded on the teacher's manager-with-config-and-mutex shape (see
// internal/indexing's lock manager) generalized from index-lock bookkeeping
// to RPC-slot bookkeeping; the actual wire correlation logic has no teacher
// analogue and is written directly from spec §4.1/§7/§8 (properties 2 and
// 3: RPC correlation, cancellation safety).
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cxxbridge/cxxbridge/internal/bridgeerr"
	"github.com/cxxbridge/cxxbridge/internal/framing"
	"github.com/cxxbridge/cxxbridge/internal/logging"
	"github.com/cxxbridge/cxxbridge/internal/tracing"
	"github.com/cxxbridge/cxxbridge/internal/transport"
)

const jsonrpcVersion = "2.0"

// envelope is the wire shape shared by requests, responses, and
// notifications; fields are all optional so one type can decode any of the
// three and be classified after the fact.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RespError      `json:"error,omitempty"`
}

// RespError is a JSON-RPC error object, delivered to the originating waiter
// per spec §7 ("LS-level error object ... delivered to the originating
// waiter").
type RespError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RespError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NotificationHandler is invoked for every server-to-client notification
// whose method matches its registration.
type NotificationHandler func(params json.RawMessage)

// RequestHandler answers a server-to-client request (e.g.
// workspace/configuration); returning an error sends an error response.
type RequestHandler func(params json.RawMessage) (result interface{}, err error)

type pendingSlot struct {
	resultCh chan json.RawMessage
	errCh    chan *RespError
}

// Client drives one JSON-RPC conversation over a transport. It owns a
// background reader goroutine for the lifetime of the connection; Close
// stops it and fails every outstanding waiter.
type Client struct {
	t      transport.Transport
	reader *framing.Reader

	nextID int64

	mu      sync.Mutex
	pending map[int64]*pendingSlot
	closed  bool
	closeErr error

	notifyMu sync.RWMutex
	notify   map[string]NotificationHandler

	reqMu sync.RWMutex
	requests map[string]RequestHandler

	doneCh chan struct{}
}

// NewClient builds a Client over t and starts its background reader.
func NewClient(t transport.Transport) *Client {
	c := &Client{
		t:        t,
		reader:   framing.NewReader(t),
		pending:  make(map[int64]*pendingSlot),
		notify:   make(map[string]NotificationHandler),
		requests: make(map[string]RequestHandler),
		doneCh:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// OnNotification registers (or replaces) the handler for method.
func (c *Client) OnNotification(method string, h NotificationHandler) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notify[method] = h
}

// OnRequest registers (or replaces) the handler for a server-initiated
// request method.
func (c *Client) OnRequest(method string, h RequestHandler) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	c.requests[method] = h
}

// Call issues a request and blocks for its matching response, or until ctx
// is cancelled. Cancellation drops the waiter without leaking its slot
// (spec §8 property 3); a response that arrives afterward is discarded.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) (err error) {
	ctx, end := tracing.Start(ctx, "rpc.call", attribute.String("rpc.method", method))
	defer func() { end(err) }()

	id := atomic.AddInt64(&c.nextID, 1)

	slot := &pendingSlot{
		resultCh: make(chan json.RawMessage, 1),
		errCh:    make(chan *RespError, 1),
	}

	c.mu.Lock()
	if c.closed {
		closeErr := c.closeErr
		c.mu.Unlock()
		return closeErr
	}
	c.pending[id] = slot
	c.mu.Unlock()

	if sendErr := c.send(id, method, params); sendErr != nil {
		c.dropSlot(id)
		err = bridgeerr.Protocol_("call:"+method, sendErr)
		return err
	}

	select {
	case raw := <-slot.resultCh:
		if result != nil && len(raw) > 0 {
			if unmarshalErr := json.Unmarshal(raw, result); unmarshalErr != nil {
				err = bridgeerr.Protocol_("call:"+method, unmarshalErr)
				return err
			}
		}
		return nil
	case rpcErr := <-slot.errCh:
		err = rpcErr
		return err
	case <-ctx.Done():
		c.dropSlot(id)
		err = bridgeerr.Cancelled("call:"+method, ctx.Err())
		return err
	case <-c.doneCh:
		err = c.terminalError()
		return err
	}
}

// Notify sends a fire-and-forget notification; there is no response to
// wait for.
func (c *Client) Notify(method string, params interface{}) error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return bridgeerr.Protocol_("notify:"+method, err)
	}
	env := envelope{JSONRPC: jsonrpcVersion, Method: method, Params: raw}
	body, err := json.Marshal(env)
	if err != nil {
		return bridgeerr.Protocol_("notify:"+method, err)
	}
	if err := framing.Write(c.t, body); err != nil {
		return bridgeerr.Protocol_("notify:"+method, err)
	}
	return nil
}

// Respond answers a server-initiated request with either a result or an
// error (mutually exclusive).
func (c *Client) Respond(id json.RawMessage, result interface{}, rpcErr *RespError) error {
	env := envelope{JSONRPC: jsonrpcVersion, ID: rawPtr(id)}
	if rpcErr != nil {
		env.Error = rpcErr
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			return bridgeerr.Protocol_("respond", err)
		}
		env.Result = raw
	}
	body, err := json.Marshal(env)
	if err != nil {
		return bridgeerr.Protocol_("respond", err)
	}
	return framing.Write(c.t, body)
}

func rawPtr(raw json.RawMessage) *json.RawMessage {
	if raw == nil {
		return nil
	}
	return &raw
}

func (c *Client) send(id int64, method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	idRaw := json.RawMessage(fmt.Sprintf("%d", id))
	env := envelope{JSONRPC: jsonrpcVersion, ID: &idRaw, Method: method, Params: raw}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return framing.Write(c.t, body)
}

func (c *Client) dropSlot(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop is the single consumer of incoming frames. It classifies each
// message as a response, a server-to-client request, or a notification.
func (c *Client) readLoop() {
	for {
		raw, err := c.reader.ReadMessage()
		if err != nil {
			c.fail(bridgeerr.Protocol_("read", fmt.Errorf("%w: %v", bridgeerr.ErrConnectionLost, err)))
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// A single malformed frame is logged and dropped, not fatal
			// (spec §7: "JSON parse error ... logged/dropped/continue").
			logging.ForComponent("rpc").Debug("dropping malformed frame", "err", err)
			continue
		}

		switch {
		case env.ID != nil && env.Method == "":
			c.deliverResponse(env)
		case env.ID != nil && env.Method != "":
			c.dispatchServerRequest(env)
		case env.Method != "":
			c.dispatchNotification(env)
		}
	}
}

func (c *Client) deliverResponse(env envelope) {
	var id int64
	if err := json.Unmarshal(*env.ID, &id); err != nil {
		return
	}

	c.mu.Lock()
	slot, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		// Either the waiter was already dropped (cancellation) or this is
		// a response to an ID we never issued; both are silently
		// discarded (spec §8 property 3).
		return
	}

	if env.Error != nil {
		slot.errCh <- env.Error
		return
	}
	slot.resultCh <- env.Result
}

func (c *Client) dispatchServerRequest(env envelope) {
	c.reqMu.RLock()
	h, ok := c.requests[env.Method]
	c.reqMu.RUnlock()
	if !ok {
		c.Respond(*env.ID, nil, &RespError{Code: -32601, Message: "method not found: " + env.Method})
		return
	}
	result, err := h(env.Params)
	if err != nil {
		c.Respond(*env.ID, nil, &RespError{Code: -32603, Message: err.Error()})
		return
	}
	c.Respond(*env.ID, result, nil)
}

func (c *Client) dispatchNotification(env envelope) {
	c.notifyMu.RLock()
	h, ok := c.notify[env.Method]
	c.notifyMu.RUnlock()
	if ok {
		h(env.Params)
	}
}

// fail marks the connection dead: every pending waiter (current and
// future) receives the same terminal error (spec §7, §8 property 10).
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	c.pending = make(map[int64]*pendingSlot)
	c.mu.Unlock()

	close(c.doneCh)
}

func (c *Client) terminalError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return bridgeerr.ErrConnectionLost
}

// Close terminates the connection and fails every pending and future call
// with ErrConnectionLost, then closes the underlying transport.
func (c *Client) Close() error {
	c.fail(bridgeerr.New(bridgeerr.Process, "close", bridgeerr.ErrConnectionLost))
	return c.t.Close()
}
