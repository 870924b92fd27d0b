package mediabridge

import "errors"

// Sentinel errors for bridge operations.
// These errors enable reliable error classification using errors.Is().

var (
	// ErrNilEndpoints indicates the endpoint set passed to a constructor
	// was nil. The bridge requires the set itself even when every field
	// in it is absent.
	ErrNilEndpoints = errors.New("endpoint set cannot be nil")

	// ErrNilTransport indicates the transport session was nil.
	ErrNilTransport = errors.New("transport session cannot be nil")

	// ErrEmptyFormatList indicates the transport delivered a negotiation
	// result with no candidate formats. This is a collaborator contract
	// violation, not a recoverable condition.
	ErrEmptyFormatList = errors.New("negotiated format list is empty")

	// ErrBridgeClosed indicates an operation was attempted on a bridge
	// that has already been closed.
	ErrBridgeClosed = errors.New("bridge is closed")
)
