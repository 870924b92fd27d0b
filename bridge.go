package mediabridge

import (
	"fmt"
	"net"
	"sync"

	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge/audio"
	"github.com/avfoundry/mediabridge/media"
	"github.com/avfoundry/mediabridge/rtp"
	"github.com/avfoundry/mediabridge/video"
)

// Bridge binds a set of optional capture/render endpoints to one
// transport session and keeps them in a consistent lifecycle state.
//
// The bridge owns the two hold substitutes for its whole lifetime: the
// music source is created for every bridge, the test pattern source
// only when a real video source is configured. All event wiring happens
// at construction; Start, PutOnHold, TakeOffHold and Close only move
// collaborators through their own lifecycles.
type Bridge struct {
	// Collaborators, immutable after construction.
	endpoints *Endpoints
	transport Transport

	// Hold substitutes owned by the bridge.
	music       *audio.MusicSource
	testPattern *video.TestPatternSource

	// Detach closures, one per handler attached at construction.
	// Run exactly once at Close, in attach order.
	detach []func()

	// Lifecycle state, guarded by mu. Event forwarding never takes mu;
	// handlers only touch collaborators, which carry their own locks.
	mu    sync.RWMutex
	state SessionState

	// videoSampleHandler has its own lock: re-emission runs on the
	// transport's receive path, and Close holds mu while waiting for
	// that path to drain.
	sampleMu           sync.RWMutex
	videoSampleHandler func(sample media.DecodedSample)
}

var _ Transport = (*rtp.Transport)(nil)

// New creates a bridge bound to a fresh RTP transport listening on the
// configured address and port. The endpoint set must be non-nil; any of
// its fields may be absent.
func New(endpoints *Endpoints, cfg Config) (*Bridge, error) {
	if endpoints == nil {
		return nil, ErrNilEndpoints
	}

	transport, err := rtp.NewTransport(cfg.BindAddr, cfg.BindPort)
	if err != nil {
		return nil, fmt.Errorf("failed to create RTP transport: %w", err)
	}

	bridge, err := NewWithTransport(endpoints, transport)
	if err != nil {
		_ = transport.Close("bridge construction failed")
		return nil, err
	}
	return bridge, nil
}

// NewWithTransport creates a bridge around an existing transport
// session. No device or network activity starts until Start is called;
// construction only performs event wiring.
func NewWithTransport(endpoints *Endpoints, transport Transport) (*Bridge, error) {
	if endpoints == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewWithTransport",
			"error":    ErrNilEndpoints.Error(),
		}).Error("Endpoint set validation failed")
		return nil, ErrNilEndpoints
	}
	if transport == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewWithTransport",
			"error":    ErrNilTransport.Error(),
		}).Error("Transport validation failed")
		return nil, ErrNilTransport
	}

	b := &Bridge{
		endpoints: endpoints,
		transport: transport,
		state:     StateCreated,
		music:     audio.NewMusicSource(),
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewWithTransport",
		"audio_source": endpoints.AudioSource != nil,
		"audio_sink":   endpoints.AudioSink != nil,
		"video_source": endpoints.VideoSource != nil,
		"video_sink":   endpoints.VideoSink != nil,
	}).Info("Creating media session bridge")

	if err := b.wire(); err != nil {
		b.unwire()
		_ = b.music.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":      "NewWithTransport",
		"subscriptions": len(b.detach),
	}).Debug("Bridge wiring completed")

	return b, nil
}

// wire attaches every event handler the bridge needs, recording a
// symmetric detach closure for each attachment.
func (b *Bridge) wire() error {
	transport := b.transport

	// The music source always feeds the transport's audio send path.
	// While a real audio source is active the music source sits in
	// "none" mode and produces nothing.
	b.music.SetEncodedSampleHandler(func(duration uint32, sample []byte) {
		_ = transport.SendAudio(duration, sample)
	})
	b.onDetach(func() { b.music.SetEncodedSampleHandler(nil) })

	if src := b.endpoints.AudioSource; src != nil {
		if err := transport.AddTrack(KindAudio, src.AudioFormats()); err != nil {
			return fmt.Errorf("failed to add audio track: %w", err)
		}
		src.SetEncodedSampleHandler(func(duration uint32, sample []byte) {
			_ = transport.SendAudio(duration, sample)
		})
		b.onDetach(func() { src.SetEncodedSampleHandler(nil) })
	}

	if src := b.endpoints.VideoSource; src != nil {
		if err := transport.AddTrack(KindVideo, src.VideoFormats()); err != nil {
			return fmt.Errorf("failed to add video track: %w", err)
		}
		src.SetEncodedSampleHandler(func(duration uint32, sample []byte) {
			_ = transport.SendVideo(duration, sample)
		})
		b.onDetach(func() { src.SetEncodedSampleHandler(nil) })

		// The test pattern feeds raw frames into the real source's
		// pipeline so the source's own encoder path is reused on hold.
		b.testPattern = video.NewTestPatternSource()
		b.testPattern.SetRawSampleHandler(func(sample media.RawSample) {
			src.DeliverRawSample(sample)
		})
		b.onDetach(func() { b.testPattern.SetRawSampleHandler(nil) })
	}

	if sink := b.endpoints.VideoSink; sink != nil {
		sink.SetDecodedSampleHandler(b.emitVideoSample)
		b.onDetach(func() { sink.SetDecodedSampleHandler(nil) })

		transport.SetVideoFrameHandler(sink.GotVideoFrame)
		b.onDetach(func() { transport.SetVideoFrameHandler(nil) })
	}

	if sink := b.endpoints.AudioSink; sink != nil {
		transport.SetRTPPacketHandler(b.forwardRTPPacket)
		b.onDetach(func() { transport.SetRTPPacketHandler(nil) })
	}

	transport.SetAudioFormatsHandler(b.onAudioFormatsNegotiated)
	b.onDetach(func() { transport.SetAudioFormatsHandler(nil) })

	transport.SetVideoFormatsHandler(b.onVideoFormatsNegotiated)
	b.onDetach(func() { transport.SetVideoFormatsHandler(nil) })

	return nil
}

// onDetach records the symmetric detach for an attachment made in wire.
func (b *Bridge) onDetach(fn func()) {
	b.detach = append(b.detach, fn)
}

// unwire runs every recorded detach closure once and forgets them.
func (b *Bridge) unwire() {
	for _, fn := range b.detach {
		fn()
	}
	b.detach = nil
}

// forwardRTPPacket hands received audio packets to the audio sink with
// their header fields untouched. Non-audio packets are not forwarded;
// video reaches the video sink through the frame path instead.
func (b *Bridge) forwardRTPPacket(remote net.Addr, kind MediaKind, packet *pionrtp.Packet) {
	if kind != KindAudio {
		return
	}
	sink := b.endpoints.AudioSink
	if sink == nil {
		return
	}
	sink.GotAudioRTP(remote, packet.SSRC, packet.SequenceNumber, packet.Timestamp,
		packet.PayloadType, packet.Marker, packet.Payload)
}

// onAudioFormatsNegotiated applies the first candidate audio format to
// the audio sink, the audio source and the music source so every piece
// of the audio path stays byte-compatible with the transport.
func (b *Bridge) onAudioFormatsNegotiated(formats []Format) error {
	if len(formats) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "onAudioFormatsNegotiated",
			"error":    ErrEmptyFormatList.Error(),
		}).Error("Audio format negotiation contract violated")
		return ErrEmptyFormatList
	}

	format := formats[0]
	logrus.WithFields(logrus.Fields{
		"function":   "onAudioFormatsNegotiated",
		"format":     format.String(),
		"candidates": len(formats),
	}).Info("Applying negotiated audio format")

	if sink := b.endpoints.AudioSink; sink != nil {
		sink.SetAudioSinkFormat(format)
	}
	if src := b.endpoints.AudioSource; src != nil {
		src.SetAudioSourceFormat(format)
	}
	b.music.SetFormat(format)

	return nil
}

// onVideoFormatsNegotiated applies the first candidate video format to
// the video sink and source. The test pattern source only injects raw
// samples and never encodes, so it needs no format.
func (b *Bridge) onVideoFormatsNegotiated(formats []Format) error {
	if len(formats) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "onVideoFormatsNegotiated",
			"error":    ErrEmptyFormatList.Error(),
		}).Error("Video format negotiation contract violated")
		return ErrEmptyFormatList
	}

	format := formats[0]
	logrus.WithFields(logrus.Fields{
		"function":   "onVideoFormatsNegotiated",
		"format":     format.String(),
		"candidates": len(formats),
	}).Info("Applying negotiated video format")

	if sink := b.endpoints.VideoSink; sink != nil {
		sink.SetVideoSinkFormat(format)
	}
	if src := b.endpoints.VideoSource; src != nil {
		src.SetVideoSourceFormat(format)
	}

	return nil
}

// emitVideoSample re-emits the video sink's decoded samples on the
// bridge's own output event.
func (b *Bridge) emitVideoSample(sample media.DecodedSample) {
	b.sampleMu.RLock()
	handler := b.videoSampleHandler
	b.sampleMu.RUnlock()

	if handler != nil {
		handler(sample)
	}
}

// SetVideoSampleHandler registers the handler invoked for every decoded
// video sample the sink emits. A nil handler unregisters.
func (b *Bridge) SetVideoSampleHandler(handler func(sample media.DecodedSample)) {
	b.sampleMu.Lock()
	defer b.sampleMu.Unlock()
	b.videoSampleHandler = handler
}

// State returns the current lifecycle state.
func (b *Bridge) State() SessionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// MusicSource exposes the hold-substitute audio generator for advanced
// callers that want to change its mode or content directly.
func (b *Bridge) MusicSource() *audio.MusicSource {
	return b.music
}

// TestPatternSource exposes the hold-substitute video generator.
// Returns nil when the bridge was built without a video source.
func (b *Bridge) TestPatternSource() *video.TestPatternSource {
	return b.testPattern
}

// Start brings the session live: transport first, then the real audio
// source, then the real video source followed by the test pattern
// source. Each step completes before the next begins. A failed step is
// returned to the caller without rolling back the steps that already
// succeeded; the caller unwinds with Close.
//
// Start only acts when the bridge is in the created state; calling it
// again is a no-op.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateCreated {
		logrus.WithFields(logrus.Fields{
			"function": "Start",
			"state":    b.state.String(),
		}).Debug("Start ignored outside created state")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Start",
	}).Info("Starting media session bridge")

	if err := b.transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	if b.transport.HasAudio() {
		if src := b.endpoints.AudioSource; src != nil {
			if err := src.StartAudio(); err != nil {
				return fmt.Errorf("failed to start audio source: %w", err)
			}
		}
	}

	if b.transport.HasVideo() {
		if src := b.endpoints.VideoSource; src != nil {
			if err := src.StartVideo(); err != nil {
				return fmt.Errorf("failed to start video source: %w", err)
			}
		}
		// The test pattern runs at all times once video exists; its
		// frames are only consumed while the real source is paused.
		if b.testPattern != nil {
			if err := b.testPattern.Start(); err != nil {
				return fmt.Errorf("failed to start test pattern source: %w", err)
			}
		}
	}

	b.state = StateStarted

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"state":    b.state.String(),
	}).Info("Media session bridge started")

	return nil
}

// PutOnHold pauses the real audio source and substitutes hold music,
// and switches the test pattern to the alternate asset at the low hold
// frame rate. A key frame is requested from the real video source up
// front so the remote party can resynchronize the moment hold ends.
//
// Only meaningful when the session is started or already on hold; a
// no-op otherwise.
func (b *Bridge) PutOnHold() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateStarted && b.state != StateOnHold {
		logrus.WithFields(logrus.Fields{
			"function": "PutOnHold",
			"state":    b.state.String(),
		}).Debug("PutOnHold ignored outside started state")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "PutOnHold",
	}).Info("Putting media session on hold")

	if b.transport.HasAudio() {
		if src := b.endpoints.AudioSource; src != nil {
			if err := src.PauseAudio(); err != nil {
				return fmt.Errorf("failed to pause audio source: %w", err)
			}
		}
		b.music.SetSource(audio.SourceMusic)
	}

	if b.transport.HasVideo() && b.testPattern != nil {
		b.testPattern.SetPattern(video.PatternInverted)
		if err := b.testPattern.SetFrameRate(video.HoldFrameRate); err != nil {
			return fmt.Errorf("failed to set hold frame rate: %w", err)
		}
		if src := b.endpoints.VideoSource; src != nil {
			src.ForceKeyFrame()
		}
	}

	b.state = StateOnHold
	return nil
}

// TakeOffHold is the exact inverse of PutOnHold: the music source goes
// back to "none", the real audio source resumes, and the test pattern
// returns to the normal asset and frame rate with a fresh key frame
// forced on the real video source.
func (b *Bridge) TakeOffHold() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateStarted && b.state != StateOnHold {
		logrus.WithFields(logrus.Fields{
			"function": "TakeOffHold",
			"state":    b.state.String(),
		}).Debug("TakeOffHold ignored outside started state")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "TakeOffHold",
	}).Info("Taking media session off hold")

	if b.transport.HasAudio() {
		b.music.SetSource(audio.SourceNone)
		if src := b.endpoints.AudioSource; src != nil {
			if err := src.ResumeAudio(); err != nil {
				return fmt.Errorf("failed to resume audio source: %w", err)
			}
		}
	}

	if b.transport.HasVideo() && b.testPattern != nil {
		b.testPattern.SetPattern(video.PatternNormal)
		if err := b.testPattern.SetFrameRate(video.DefaultFrameRate); err != nil {
			return fmt.Errorf("failed to restore frame rate: %w", err)
		}
		if src := b.endpoints.VideoSource; src != nil {
			src.ForceKeyFrame()
		}
	}

	b.state = StateStarted
	return nil
}

// Close tears the session down: transport, hold substitutes, real
// sources, then every handler attachment made at construction. Each
// step guards on the presence of its own target, so Close is safe even
// if Start never completed. All steps run regardless of individual
// failures; the first error is returned. Closing twice is a no-op.
func (b *Bridge) Close(reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed {
		logrus.WithFields(logrus.Fields{
			"function": "Close",
		}).Debug("Close ignored, bridge already closed")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"reason":   reason,
		"state":    b.state.String(),
	}).Info("Closing media session bridge")

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := b.transport.Close(reason); err != nil {
		record(fmt.Errorf("failed to close transport: %w", err))
	}

	record(b.music.Close())

	if b.testPattern != nil {
		record(b.testPattern.Close())
	}

	if src := b.endpoints.AudioSource; src != nil {
		record(src.CloseAudio())
	}
	if src := b.endpoints.VideoSource; src != nil {
		record(src.CloseVideo())
	}

	b.unwire()
	b.state = StateClosed

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Media session bridge closed")

	return firstErr
}
