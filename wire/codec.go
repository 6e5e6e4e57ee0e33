// Package wire implements the envelope codec and event naming for the
// stream wire contract.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pithecene-io/chorus/types"
)

// DecodeErrorKind classifies envelope decoding errors.
type DecodeErrorKind int

const (
	// DecodeErrorMalformed indicates the raw bytes are not well-formed JSON.
	DecodeErrorMalformed DecodeErrorKind = iota
	// DecodeErrorVersion indicates an unrecognized protocol version.
	DecodeErrorVersion
	// DecodeErrorMissingField indicates a required field is absent.
	DecodeErrorMissingField
	// DecodeErrorBadValue indicates a field holds an unrecognized value.
	DecodeErrorBadValue
)

// DecodeError represents an envelope decoding failure.
// All decode failures map to the E_INVALID error code; Kind carries the
// finer classification for diagnostics.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Detail returns the coded error detail for this decode failure.
func (e *DecodeError) Detail() *types.ErrorDetail {
	return &types.ErrorDetail{Code: types.CodeInvalid, Message: e.Error()}
}

// IsDecodeError returns true if err is an envelope decode failure.
func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}

// Encode serializes an envelope to its JSON wire form.
func Encode(env *types.Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return raw, nil
}

// Decode parses and validates an envelope from its JSON wire form.
//
// Errors are always *DecodeError; decoding never panics and has no side
// effects. Validation covers the fields every envelope must carry —
// modifier-specific requirements (streamId presence, seq ordering) are
// enforced by the stream lifecycle, which owns that state.
func Decode(raw []byte) (*types.Envelope, error) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{
			Kind: DecodeErrorMalformed,
			Msg:  "malformed envelope",
			Err:  err,
		}
	}

	if env.V != types.ProtocolVersion {
		return nil, &DecodeError{
			Kind: DecodeErrorVersion,
			Msg:  fmt.Sprintf("unrecognized protocol version %q", env.V),
		}
	}
	if env.ID == "" {
		return nil, &DecodeError{
			Kind: DecodeErrorMissingField,
			Msg:  "envelope missing id",
		}
	}
	if env.Ts == 0 {
		return nil, &DecodeError{
			Kind: DecodeErrorMissingField,
			Msg:  "envelope missing ts",
		}
	}
	if !env.Direction.Valid() {
		return nil, &DecodeError{
			Kind: DecodeErrorBadValue,
			Msg:  fmt.Sprintf("unrecognized direction %q", env.Direction),
		}
	}
	if env.Actor == "" {
		return nil, &DecodeError{
			Kind: DecodeErrorMissingField,
			Msg:  "envelope missing actor",
		}
	}
	if env.Action != types.ActionStream {
		return nil, &DecodeError{
			Kind: DecodeErrorBadValue,
			Msg:  fmt.Sprintf("unrecognized action %q", env.Action),
		}
	}
	if !env.Modifier.Valid() {
		return nil, &DecodeError{
			Kind: DecodeErrorBadValue,
			Msg:  fmt.Sprintf("unrecognized modifier %q", env.Modifier),
		}
	}

	return &env, nil
}

// DecodeAck parses a start acknowledgement payload.
//
// A payload that cannot be parsed, or that claims ok without a streamId,
// is returned as a failure ack carrying E_INVALID rather than an error —
// the lifecycle treats both identically.
func DecodeAck(raw []byte) *types.StartAck {
	var ack types.StartAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return &types.StartAck{
			Ok: false,
			Error: &types.ErrorDetail{
				Code:    types.CodeInvalid,
				Message: fmt.Sprintf("unparsable acknowledgement: %v", err),
			},
		}
	}

	if ack.Ok && ack.StreamID == "" {
		return &types.StartAck{
			Ok: false,
			Error: &types.ErrorDetail{
				Code:    types.CodeInvalid,
				Message: "acknowledgement ok without streamId",
			},
		}
	}

	if !ack.Ok && ack.Error == nil {
		ack.Error = &types.ErrorDetail{
			Code:    types.CodeInternal,
			Message: "producer refused stream without detail",
		}
	}

	return &ack
}
