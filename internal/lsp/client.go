package lsp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cxxbridge/cxxbridge/internal/bridgeerr"
	"github.com/cxxbridge/cxxbridge/internal/rpc"
)

// Client is a typed wrapper over rpc.Client for the LS operations the
// bridge's tools need (spec §4.4). Requests must only be issued after
// Initialize has succeeded; callers are responsible for session-lock
// discipline around any multi-call sequence (workspace/symbol then
// documentSymbol then hover, for instance).
type Client struct {
	rpc *rpc.Client
}

// New wraps an already-connected rpc.Client.
func New(r *rpc.Client) *Client {
	return &Client{rpc: r}
}

// capabilities advertises exactly document-synchronization, hover, symbol,
// and hierarchy support, per spec §4.4 ("nothing else"). positionEncodings
// is advertised under general, where the LS protocol defines it, not under
// textDocument; UTF-16 is the default the server falls back to regardless,
// but a conforming server negotiates from this list.
func capabilities() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]interface{}{
			"positionEncodings": []string{"utf-16"},
		},
		"textDocument": map[string]interface{}{
			"synchronization": map[string]interface{}{
				"dynamicRegistration": false,
			},
			"hover": map[string]interface{}{
				"contentFormat": []string{"markdown", "plaintext"},
			},
			"documentSymbol": map[string]interface{}{"hierarchicalDocumentSymbolSupport": true},
			"typeHierarchy":  map[string]interface{}{},
			"callHierarchy":  map[string]interface{}{},
		},
		"workspace": map[string]interface{}{
			"symbol": map[string]interface{}{},
		},
	}
}

// InitializeResult is the subset of the server's initialize response the
// bridge inspects (chiefly the negotiated position encoding).
type InitializeResult struct {
	Capabilities struct {
		PositionEncoding string `json:"positionEncoding"`
	} `json:"capabilities"`
}

// Initialize issues the handshake request. root is the absolute source
// root (spec §4.3: "initialize(root=source-root)").
func (c *Client) Initialize(ctx context.Context, root string) (InitializeResult, error) {
	params := map[string]interface{}{
		"processId":    nil,
		"rootUri":      "file://" + root,
		"capabilities": capabilities(),
	}
	var result InitializeResult
	if err := c.rpc.Call(ctx, "initialize", params, &result); err != nil {
		return InitializeResult{}, bridgeerr.Protocol_("initialize", err)
	}
	return result, nil
}

// Initialized sends the post-handshake notification.
func (c *Client) Initialized(ctx context.Context) error {
	return c.rpc.Notify("initialized", struct{}{})
}

// Shutdown requests a graceful protocol-level shutdown; the caller still
// owns sending Exit and stopping the process.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.rpc.Call(ctx, "shutdown", nil, nil)
}

// Exit sends the terminal exit notification.
func (c *Client) Exit() error {
	return c.rpc.Notify("exit", nil)
}

// DidOpen announces a newly opened document.
func (c *Client) DidOpen(doc TextDocumentItem) error {
	return c.rpc.Notify("textDocument/didOpen", map[string]interface{}{
		"textDocument": doc,
	})
}

// DidChange sends a full-document replace for uri at the given version.
func (c *Client) DidChange(uri string, version int, text string) error {
	return c.rpc.Notify("textDocument/didChange", map[string]interface{}{
		"textDocument":   VersionedTextDocumentIdentifier{URI: uri, Version: version},
		"contentChanges": []TextDocumentContentChangeEvent{{Text: text}},
	})
}

// DidClose announces a document is no longer open.
func (c *Client) DidClose(uri string) error {
	return c.rpc.Notify("textDocument/didClose", map[string]interface{}{
		"textDocument": TextDocumentIdentifier{URI: uri},
	})
}

func posParams(uri string, pos Position) TextDocumentPositionParams {
	return TextDocumentPositionParams{TextDocument: TextDocumentIdentifier{URI: uri}, Position: pos}
}

// Hover requests hover information at pos.
func (c *Client) Hover(ctx context.Context, uri string, pos Position) (*Hover, error) {
	var result *Hover
	if err := c.rpc.Call(ctx, "textDocument/hover", posParams(uri, pos), &result); err != nil {
		return nil, bridgeerr.Protocol_("hover", err)
	}
	return result, nil
}

// Definition requests the definition location(s) of the symbol at pos.
func (c *Client) Definition(ctx context.Context, uri string, pos Position) ([]Location, error) {
	var result []Location
	if err := c.rpc.Call(ctx, "textDocument/definition", posParams(uri, pos), &result); err != nil {
		return nil, bridgeerr.Protocol_("definition", err)
	}
	return result, nil
}

// Declaration requests the declaration location(s) of the symbol at pos.
func (c *Client) Declaration(ctx context.Context, uri string, pos Position) ([]Location, error) {
	var result []Location
	if err := c.rpc.Call(ctx, "textDocument/declaration", posParams(uri, pos), &result); err != nil {
		return nil, bridgeerr.Protocol_("declaration", err)
	}
	return result, nil
}

// References requests every reference to the symbol at pos.
func (c *Client) References(ctx context.Context, uri string, pos Position, includeDeclaration bool) ([]Location, error) {
	params := map[string]interface{}{
		"textDocument": TextDocumentIdentifier{URI: uri},
		"position":     pos,
		"context":      ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	var result []Location
	if err := c.rpc.Call(ctx, "textDocument/references", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("references", err)
	}
	return result, nil
}

// DocumentSymbol requests the full symbol tree for uri.
func (c *Client) DocumentSymbol(ctx context.Context, uri string) ([]DocumentSymbol, error) {
	params := map[string]interface{}{"textDocument": TextDocumentIdentifier{URI: uri}}
	var result []DocumentSymbol
	if err := c.rpc.Call(ctx, "textDocument/documentSymbol", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("documentSymbol", err)
	}
	return result, nil
}

// WorkspaceSymbol searches the whole workspace for a (possibly fuzzy)
// symbol name query.
func (c *Client) WorkspaceSymbol(ctx context.Context, query string) ([]WorkspaceSymbol, error) {
	params := map[string]interface{}{"query": query}
	var result []WorkspaceSymbol
	if err := c.rpc.Call(ctx, "workspace/symbol", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("workspace/symbol", err)
	}
	return result, nil
}

// PrepareTypeHierarchy anchors a type-hierarchy walk at pos.
func (c *Client) PrepareTypeHierarchy(ctx context.Context, uri string, pos Position) ([]TypeHierarchyItem, error) {
	var result []TypeHierarchyItem
	if err := c.rpc.Call(ctx, "textDocument/prepareTypeHierarchy", posParams(uri, pos), &result); err != nil {
		return nil, bridgeerr.Protocol_("prepareTypeHierarchy", err)
	}
	return result, nil
}

// Supertypes walks up from item.
func (c *Client) Supertypes(ctx context.Context, item TypeHierarchyItem) ([]TypeHierarchyItem, error) {
	params := map[string]interface{}{"item": item}
	var result []TypeHierarchyItem
	if err := c.rpc.Call(ctx, "typeHierarchy/supertypes", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("supertypes", err)
	}
	return result, nil
}

// Subtypes walks down from item.
func (c *Client) Subtypes(ctx context.Context, item TypeHierarchyItem) ([]TypeHierarchyItem, error) {
	params := map[string]interface{}{"item": item}
	var result []TypeHierarchyItem
	if err := c.rpc.Call(ctx, "typeHierarchy/subtypes", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("subtypes", err)
	}
	return result, nil
}

// PrepareCallHierarchy anchors a call-hierarchy walk at pos.
func (c *Client) PrepareCallHierarchy(ctx context.Context, uri string, pos Position) ([]CallHierarchyItem, error) {
	var result []CallHierarchyItem
	if err := c.rpc.Call(ctx, "textDocument/prepareCallHierarchy", posParams(uri, pos), &result); err != nil {
		return nil, bridgeerr.Protocol_("prepareCallHierarchy", err)
	}
	return result, nil
}

// IncomingCalls lists callers of item.
func (c *Client) IncomingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyIncomingCall, error) {
	params := map[string]interface{}{"item": item}
	var result []CallHierarchyIncomingCall
	if err := c.rpc.Call(ctx, "callHierarchy/incomingCalls", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("incomingCalls", err)
	}
	return result, nil
}

// OutgoingCalls lists callees of item.
func (c *Client) OutgoingCalls(ctx context.Context, item CallHierarchyItem) ([]CallHierarchyOutgoingCall, error) {
	params := map[string]interface{}{"item": item}
	var result []CallHierarchyOutgoingCall
	if err := c.rpc.Call(ctx, "callHierarchy/outgoingCalls", params, &result); err != nil {
		return nil, bridgeerr.Protocol_("outgoingCalls", err)
	}
	return result, nil
}

// ResolveSymbolPosition resolves a bare symbol name to its defining
// (file, position) via workspace/symbol, since prepareTypeHierarchy and
// prepareCallHierarchy both need a cursor position rather than a name
// (spec §D.3, grounded on original_source's lsp_helpers member-resolution
// pre-check). It returns the first exact (case-sensitive) name match, or
// an error if none is found.
func (c *Client) ResolveSymbolPosition(ctx context.Context, name string) (Location, error) {
	symbols, err := c.WorkspaceSymbol(ctx, name)
	if err != nil {
		return Location{}, err
	}
	for _, sym := range symbols {
		if sym.Name == name {
			return sym.Location, nil
		}
	}
	return Location{}, bridgeerr.Protocol_("resolveSymbolPosition",
		fmt.Errorf("no workspace symbol named %q", name))
}

// OnProgress registers a handler for $/progress notifications; C10's
// progress monitor uses this to observe indexing events (spec §4.3:
// "register the progress monitor against the RPC notification stream").
func (c *Client) OnProgress(handler func(params json.RawMessage)) {
	c.rpc.OnNotification("$/progress", handler)
}
