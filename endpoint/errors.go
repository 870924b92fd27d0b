package endpoint

import "errors"

var (
	// ErrEndpointClosed is returned when an operation is attempted on a
	// closed endpoint.
	ErrEndpointClosed = errors.New("endpoint: endpoint is closed")

	// ErrNotStarted is returned when media is pushed into an endpoint
	// that has not been started.
	ErrNotStarted = errors.New("endpoint: endpoint not started")
)
