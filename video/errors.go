package video

import "errors"

var (
	// ErrSourceClosed indicates an operation on a closed pattern source.
	ErrSourceClosed = errors.New("test pattern source is closed")

	// ErrInvalidFrameRate indicates a frame rate outside the supported
	// range.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)
