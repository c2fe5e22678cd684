// Package swaperr defines the error taxonomy shared by chain adapters, the swap
// orchestrator and the resolver facade. Every error carries a machine-readable
// Kind so callers can report it without string matching.
package swaperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and reporting.
type Kind string

const (
	KindRPC                   Kind = "RpcError"
	KindRevert                Kind = "RevertError"
	KindInsufficientAllowance Kind = "InsufficientAllowanceError"
	KindUnknownAsset          Kind = "UnknownAssetError"
	KindEncoding              Kind = "EncodingError"
	KindPartialSettlement     Kind = "PartialSettlementError"
	KindInvalidRequest        Kind = "InvalidRequestError"
	KindNotFound              Kind = "NotFoundError"
	KindInternal              Kind = "InternalError"
)

// Retryable reports whether an operation failing with this kind may succeed
// unchanged on a later attempt.
func (k Kind) Retryable() bool {
	return k == KindRPC
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "sepolia.createEscrow"
	Message string
	Err     error

	// SourceRef is the completed source-side reference for partial settlements.
	SourceRef string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RPC wraps a node or network failure.
func RPC(op string, err error) error {
	return &Error{Kind: KindRPC, Op: op, Err: err}
}

// Revert reports a transaction the chain rejected, with the node-reported reason.
func Revert(op, reason string) error {
	return &Error{Kind: KindRevert, Op: op, Message: reason}
}

// InsufficientAllowance reports an unmet user approval.
func InsufficientAllowance(op, have, need string) error {
	return &Error{
		Kind:    KindInsufficientAllowance,
		Op:      op,
		Message: fmt.Sprintf("allowance %s is below required %s", have, need),
	}
}

// UnknownAsset reports an asset missing from the network's asset table.
func UnknownAsset(op string, err error) error {
	return &Error{Kind: KindUnknownAsset, Op: op, Err: err}
}

// Encoding reports a value that cannot be encoded.
func Encoding(op string, err error) error {
	return &Error{Kind: KindEncoding, Op: op, Err: err}
}

// PartialSettlement reports a swap whose source leg completed while the
// destination leg did not.
func PartialSettlement(op, sourceRef string, err error) error {
	return &Error{
		Kind:      KindPartialSettlement,
		Op:        op,
		Message:   "source leg completed (" + sourceRef + ") but destination leg failed",
		Err:       err,
		SourceRef: sourceRef,
	}
}

// InvalidRequest reports malformed caller input.
func InvalidRequest(op, message string) error {
	return &Error{Kind: KindInvalidRequest, Op: op, Message: message}
}

// NotFound reports a missing order.
func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found"}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal for unclassified errors. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err's chain contains a classified error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// SourceRefOf returns the preserved source reference of a partial settlement.
func SourceRefOf(err error) string {
	var e *Error
	for err != nil && errors.As(err, &e) {
		if e.Kind == KindPartialSettlement {
			return e.SourceRef
		}
		err = e.Err
	}
	return ""
}
