package emv

import (
	"context"
	"errors"
)

// ErrTransportClosed is wrapped by transports that were closed. The tap loop
// stops on it instead of retrying.
var ErrTransportClosed = errors.New("emv: transport closed")

//go:generate mockgen -source=transport.go -destination=mocks/transport.go -package=mocks

// Transport moves raw APDUs to and from one contactless target.
type Transport interface {
	// Exchange sends cmd and returns the full response including the two
	// status word bytes. A nil error with an empty response is possible and
	// is classified by the caller.
	Exchange(ctx context.Context, cmd []byte) ([]byte, error)
	// DetectTarget reports whether a target is in the field.
	DetectTarget(ctx context.Context) (bool, error)
}
