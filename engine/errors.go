// Package engine runs the per-actor stream lifecycle over a duplex
// transport and reassembles acknowledged streams into the transcript.
package engine

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/chorus/types"
)

// StreamError is a coded lifecycle error. The code taxonomy is shared
// with the wire contract; use CodeOf or the Is helpers for assertions.
type StreamError struct {
	// Code classifies the failure.
	Code types.ErrorCode
	// Actor is the actor the failure is scoped to.
	Actor string
	// Msg is the human-readable description.
	Msg string
	// Err is the underlying error, if any.
	Err error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Actor, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Actor, e.Code, e.Msg)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Detail converts the error to the wire-shaped error detail.
func (e *StreamError) Detail() *types.ErrorDetail {
	return &types.ErrorDetail{Code: e.Code, Message: e.Msg}
}

// newStreamError creates a coded, actor-scoped error.
func newStreamError(code types.ErrorCode, actor, msg string) *StreamError {
	return &StreamError{Code: code, Actor: actor, Msg: msg}
}

// CodeOf returns the error code carried by err, or E_INTERNAL for
// errors without classification.
func CodeOf(err error) types.ErrorCode {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Code
	}
	return types.CodeInternal
}

// IsConflict returns true for a start refused because the actor is busy.
func IsConflict(err error) bool {
	return CodeOf(err) == types.CodeConflict
}

// IsTimeout returns true for an acknowledgement timeout.
func IsTimeout(err error) bool {
	return CodeOf(err) == types.CodeTimeout
}

// IsUnavailable returns true for a transport-level failure.
func IsUnavailable(err error) bool {
	return CodeOf(err) == types.CodeUnavailable
}
