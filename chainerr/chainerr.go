// Package chainerr defines the closed set of error kinds shared by the
// consensus, utxo, chainstore, engine and p2p packages.
package chainerr

import "fmt"

// Kind is a closed enumeration of the error categories a node can surface.
// New members are never added silently: every caller that inspects Kind is
// expected to switch exhaustively over this list.
type Kind string

const (
	Malformed          Kind = "MALFORMED"
	StructuralInvalid  Kind = "STRUCTURAL_INVALID"
	BadPoW             Kind = "BAD_POW"
	BadTimestamp       Kind = "BAD_TIMESTAMP"
	BadTarget          Kind = "BAD_TARGET"
	BadSignature       Kind = "BAD_SIGNATURE"
	UnknownParent      Kind = "UNKNOWN_PARENT"
	UnknownInput       Kind = "UNKNOWN_INPUT"
	DoubleSpend        Kind = "DOUBLE_SPEND"
	InsufficientValue  Kind = "INSUFFICIENT_VALUE"
	CoinbaseOverflow   Kind = "COINBASE_OVERFLOW"
	StaleTemplate      Kind = "STALE_TEMPLATE"
	MempoolFull        Kind = "MEMPOOL_FULL"
	AlreadyKnown       Kind = "ALREADY_KNOWN"
	IO                 Kind = "IO"
	ProtocolViolation  Kind = "PROTOCOL_VIOLATION"
	VersionMismatch    Kind = "VERSION_MISMATCH"
)

// Error pairs a Kind with a human-readable message and, where relevant, a
// wrapped cause. It intentionally carries no stack trace or retry policy of
// its own — those are a concern of the caller's propagation rules (§7).
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New builds an *Error with the given kind and message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to an underlying cause, preserving it for errors.Is/As.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Recoverable reports whether the error kind represents a condition that
// should not close the originating peer session (§7: UnknownParent is
// recoverable and triggers orphan handling instead of a teardown).
func Recoverable(kind Kind) bool {
	switch kind {
	case UnknownParent, AlreadyKnown:
		return true
	default:
		return false
	}
}
