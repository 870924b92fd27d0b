package audio

import "errors"

var (
	// ErrSourceClosed indicates an operation on a closed music source.
	ErrSourceClosed = errors.New("music source is closed")

	// ErrUnsupportedFormat indicates the requested format has no codec
	// implementation in this package.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrEmptyPayload indicates a decode was attempted on empty data.
	ErrEmptyPayload = errors.New("audio payload is empty")
)
