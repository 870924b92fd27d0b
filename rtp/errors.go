package rtp

import "errors"

var (
	// ErrTransportClosed is returned when an operation is attempted on a
	// transport that has been closed.
	ErrTransportClosed = errors.New("rtp: transport is closed")

	// ErrTransportStarted is returned when a track is added after the
	// receive loop has already been started.
	ErrTransportStarted = errors.New("rtp: transport already started")

	// ErrTrackExists is returned when a second track of the same media
	// kind is added to a transport.
	ErrTrackExists = errors.New("rtp: track already exists for media kind")

	// ErrNoTrack is returned when a send is attempted for a media kind
	// that has no track.
	ErrNoTrack = errors.New("rtp: no track for media kind")

	// ErrNoRemoteAddress is returned when a send is attempted before a
	// remote description established the peer address.
	ErrNoRemoteAddress = errors.New("rtp: no remote address")

	// ErrNoFormats is returned when a track is added with an empty
	// format list, or when a send finds no usable payload format.
	ErrNoFormats = errors.New("rtp: no formats for track")

	// ErrUnsupportedKind is returned for media kinds the transport does
	// not carry.
	ErrUnsupportedKind = errors.New("rtp: unsupported media kind")
)
