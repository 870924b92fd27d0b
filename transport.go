package mediabridge

import (
	"net"

	pionrtp "github.com/pion/rtp"
)

// FormatsNegotiatedHandler receives the ordered candidate format list
// for one media kind once negotiation completes. Returning an error
// signals a contract violation (such as an empty list) back to the
// transport; the transport must not treat the negotiation as applied.
type FormatsNegotiatedHandler func(formats []Format) error

// RTPPacketHandler receives every parsed RTP packet the transport
// reads, classified by media kind. Invoked from the transport's receive
// context, concurrently with lifecycle operations.
type RTPPacketHandler func(remote net.Addr, kind MediaKind, packet *pionrtp.Packet)

// VideoFrameHandler receives complete, depacketized video frames.
type VideoFrameHandler func(remote net.Addr, timestamp uint32, frame []byte)

// Transport is the wire-level session the bridge coordinates.
// Packetization, jitter handling and transport security are the
// transport's own business; the bridge only moves samples in, takes
// packets and frames out, and reacts to negotiated formats.
//
// The bundled rtp.Transport implements this interface; tests use mocks.
// All Set methods accept nil to unregister, which is how the bridge
// detaches its handlers at Close.
type Transport interface {
	// AddTrack declares a local track of the given kind with its
	// capability formats. Must be called before Start.
	AddTrack(kind MediaKind, formats []Format) error

	Start() error
	Close(reason string) error

	// SendAudio and SendVideo queue one encoded sample for
	// transmission. The duration advances the RTP timestamp in the
	// clock units of the track's active format.
	SendAudio(durationRTPUnits uint32, payload []byte) error
	SendVideo(durationRTPUnits uint32, payload []byte) error

	// HasAudio and HasVideo report whether a track of the kind exists.
	HasAudio() bool
	HasVideo() bool

	// The handler setters take plain function signatures rather than
	// the named handler types so transports in other packages satisfy
	// the interface without importing this one.
	SetAudioFormatsHandler(handler func(formats []Format) error)
	SetVideoFormatsHandler(handler func(formats []Format) error)
	SetRTPPacketHandler(handler func(remote net.Addr, kind MediaKind, packet *pionrtp.Packet))
	SetVideoFrameHandler(handler func(remote net.Addr, timestamp uint32, frame []byte))
}
