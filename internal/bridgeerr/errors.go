// Package bridgeerr defines the structured error taxonomy shared by every
// layer of the session/index orchestration core.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way spec §7 enumerates them.
type Kind string

const (
	Configuration Kind = "configuration"
	Process       Kind = "process"
	Protocol      Kind = "protocol"
	Indexing      Kind = "indexing"
	Cancellation  Kind = "cancellation"
	Resource      Kind = "resource"
)

// Error is the failure value returned by the session, process, LS-client,
// buffer and version-cache packages, and by rpc for local failures; the
// lower-level framing, compiledb, indexmap and buildconfig packages return
// plain errors. Stage names the operation that failed ("spawn", "initialize",
// "ensure_indexed", ...); BuildDir is set when the failure is scoped to one
// build configuration.
type Error struct {
	Kind       Kind
	Stage      string
	BuildDir   string
	Underlying error
}

func (e *Error) Error() string {
	if e.BuildDir != "" {
		return fmt.Sprintf("%s: %s [%s]: %v", e.Kind, e.Stage, e.BuildDir, e.Underlying)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Underlying)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is a *Error with the same Kind, so callers can
// write `errors.Is(err, &bridgeerr.Error{Kind: bridgeerr.Process})` checks.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func new_(kind Kind, stage string, buildDir string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, BuildDir: buildDir, Underlying: err}
}

// New wraps err with Kind and Stage, no build-directory scope.
func New(kind Kind, stage string, err error) *Error {
	return new_(kind, stage, "", err)
}

// Scoped wraps err with Kind, Stage, and the build directory it concerns.
func Scoped(kind Kind, stage, buildDir string, err error) *Error {
	return new_(kind, stage, buildDir, err)
}

func Config(stage string, err error) *Error       { return New(Configuration, stage, err) }
func Proc(stage string, err error) *Error         { return New(Process, stage, err) }
func Protocol_(stage string, err error) *Error    { return New(Protocol, stage, err) }
func Idx(stage string, err error) *Error          { return New(Indexing, stage, err) }
func Cancelled(stage string, err error) *Error    { return New(Cancellation, stage, err) }
func Res(stage string, err error) *Error          { return New(Resource, stage, err) }

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, returning ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// ErrConnectionLost is the terminal error every pending and future RPC
// waiter receives once a component session's transport dies (spec §4.3,
// §7 "Process" / "terminal connection failure").
var ErrConnectionLost = errors.New("connection lost")

// ErrSlotFreed names the case of an RPC response that arrived after its
// waiter was dropped. Nothing in this module returns it: rpc discards such
// responses without surfacing or logging them.
var ErrSlotFreed = errors.New("response slot already freed")
