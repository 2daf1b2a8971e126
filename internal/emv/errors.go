package emv

import (
	"errors"
	"fmt"

	"github.com/danmuck/emvtap/internal/protocol/tlv"
)

var (
	ErrTransport      = errors.New("emv: transport failure")
	ErrParse          = errors.New("emv: malformed data")
	ErrNoCandidate    = errors.New("emv: no application candidate")
	ErrMissingAFL     = errors.New("emv: application file locator missing")
	ErrPolicyMismatch = errors.New("emv: data object length mismatch")
)

// TransportError reports a link failure or a missing response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("emv: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ParseError reports malformed TLV, DOL or AFL structure.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("emv: malformed %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

type MismatchKind int

const (
	MismatchUnknownTag MismatchKind = iota + 1
	MismatchTruncated
	MismatchPadded
)

func (k MismatchKind) String() string {
	switch k {
	case MismatchUnknownTag:
		return "unknown"
	case MismatchTruncated:
		return "truncated"
	case MismatchPadded:
		return "padded"
	default:
		return fmt.Sprintf("UnknownMismatchKind(%d)", int(k))
	}
}

// PolicyMismatch records a DOL entry the terminal could not answer with a
// value of exactly the requested length. It is informational: the entry has
// already been zero filled, truncated or padded.
type PolicyMismatch struct {
	Tag       tlv.Tag
	Requested int
	Available int
	Kind      MismatchKind
}

func (e *PolicyMismatch) Error() string {
	if e.Kind == MismatchUnknownTag {
		return fmt.Sprintf("emv: no terminal value for %s, zero filled %d bytes", e.Tag, e.Requested)
	}
	return fmt.Sprintf("emv: %s requested %d bytes, have %d (%s)", e.Tag, e.Requested, e.Available, e.Kind)
}

func (e *PolicyMismatch) Is(target error) bool {
	return target == ErrPolicyMismatch
}

// CycleError is the failure reason of an aborted tap cycle.
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("emv: %s failed: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
