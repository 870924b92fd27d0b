package mediabridge

import (
	"net"

	"github.com/avfoundry/mediabridge/media"
)

// Convenience aliases so callers wiring a bridge do not need to import
// the media package for the common types.
type (
	// Format is a negotiated media format.
	Format = media.Format
	// MediaKind classifies a format or packet as audio or video.
	MediaKind = media.Kind
)

// Re-exported media kinds.
const (
	KindAudio = media.KindAudio
	KindVideo = media.KindVideo
)

// EncodedSampleHandler receives an encoded media sample from a capture
// endpoint or a hold substitute. The duration is expressed in RTP clock
// units of the sample's active format.
type EncodedSampleHandler func(durationRTPUnits uint32, sample []byte)

// AudioSource is a capture endpoint producing encoded audio samples.
type AudioSource interface {
	// AudioFormats returns the formats the source can produce, in
	// preference order. Used to register the source as a transport track.
	AudioFormats() []Format

	// SetAudioSourceFormat switches the source's encoder to the
	// negotiated format.
	SetAudioSourceFormat(format Format)

	StartAudio() error
	PauseAudio() error
	ResumeAudio() error
	CloseAudio() error

	// SetEncodedSampleHandler registers the handler invoked for every
	// encoded sample the source produces. A nil handler unregisters.
	SetEncodedSampleHandler(handler EncodedSampleHandler)
}

// AudioSink is a render endpoint consuming received audio at the RTP
// packet level. Header fields are handed over exactly as they arrived.
type AudioSink interface {
	// SetAudioSinkFormat switches the sink's decoder to the negotiated
	// format.
	SetAudioSinkFormat(format Format)

	// GotAudioRTP delivers one received audio packet. Implementations
	// must tolerate concurrent calls; this is invoked from the
	// transport's receive context.
	GotAudioRTP(remote net.Addr, ssrc uint32, sequenceNumber uint16, timestamp uint32,
		payloadType uint8, marker bool, payload []byte)
}

// VideoSource is a capture endpoint producing encoded video samples. It
// additionally exposes an external raw sample injection point so the
// hold-substitute test pattern can feed frames through the source's own
// encoder pipeline while the session is on hold.
type VideoSource interface {
	VideoFormats() []Format
	SetVideoSourceFormat(format Format)

	StartVideo() error
	CloseVideo() error

	// ForceKeyFrame requests that the next encoded frame be
	// self-contained so a remote decoder can resynchronize.
	ForceKeyFrame()

	// DeliverRawSample injects an externally produced raw frame into
	// the source's encoder pipeline.
	DeliverRawSample(sample media.RawSample)

	SetEncodedSampleHandler(handler EncodedSampleHandler)
}

// VideoSink is a render endpoint consuming received, depacketized video
// frames and emitting decoded samples.
type VideoSink interface {
	SetVideoSinkFormat(format Format)

	// GotVideoFrame delivers one complete received video frame.
	GotVideoFrame(remote net.Addr, timestamp uint32, frame []byte)

	// SetDecodedSampleHandler registers the handler invoked for every
	// frame the sink finishes decoding. A nil handler unregisters.
	SetDecodedSampleHandler(handler func(sample media.DecodedSample))
}

// Endpoints is the set of capture and render endpoints a bridge binds
// to its transport session. Every field may be nil; the set is treated
// as immutable after construction of the bridge.
type Endpoints struct {
	AudioSource AudioSource
	AudioSink   AudioSink
	VideoSource VideoSource
	VideoSink   VideoSink
}
