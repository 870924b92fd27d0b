package endpoint

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge"
	"github.com/avfoundry/mediabridge/audio"
	"github.com/avfoundry/mediabridge/media"
)

// PCMHandler receives decoded audio from an AudioEndpoint's sink side.
type PCMHandler func(remote net.Addr, sampleRate uint32, pcm []int16)

// AudioEndpoint is a software audio device: the application pushes PCM
// frames in via SendPCM and receives decoded remote audio through a
// PCMHandler. It implements both the capture and the render contract so
// one instance can serve a bidirectional session.
type AudioEndpoint struct {
	mu sync.Mutex

	formats      []media.Format
	sourceFormat media.Format
	sinkFormat   media.Format

	started bool
	paused  bool
	closed  bool

	// decMu serializes decoder use; the Opus decoder is stateful and
	// GotAudioRTP may be called concurrently.
	decMu   sync.Mutex
	decoder *audio.Decoder

	sampleHandler mediabridge.EncodedSampleHandler
	pcmHandler    PCMHandler
}

var (
	_ mediabridge.AudioSource = (*AudioEndpoint)(nil)
	_ mediabridge.AudioSink   = (*AudioEndpoint)(nil)
)

// NewAudioEndpoint creates an endpoint advertising the given formats in
// preference order. With no formats it defaults to PCMU then PCMA.
func NewAudioEndpoint(formats ...media.Format) *AudioEndpoint {
	if len(formats) == 0 {
		formats = []media.Format{media.FormatPCMU, media.FormatPCMA}
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewAudioEndpoint",
		"formats":  len(formats),
	}).Debug("Creating audio endpoint")

	return &AudioEndpoint{
		formats:      append([]media.Format(nil), formats...),
		sourceFormat: formats[0],
		sinkFormat:   formats[0],
		decoder:      audio.NewDecoder(),
	}
}

// AudioFormats returns the endpoint's capabilities in preference order.
func (e *AudioEndpoint) AudioFormats() []media.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]media.Format(nil), e.formats...)
}

// SetAudioSourceFormat switches the capture side to the negotiated
// format.
func (e *AudioEndpoint) SetAudioSourceFormat(format media.Format) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sourceFormat = format

	logrus.WithFields(logrus.Fields{
		"function": "SetAudioSourceFormat",
		"format":   format.String(),
	}).Debug("Audio source format set")
}

// SetAudioSinkFormat switches the render side to the negotiated format.
func (e *AudioEndpoint) SetAudioSinkFormat(format media.Format) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinkFormat = format

	logrus.WithFields(logrus.Fields{
		"function": "SetAudioSinkFormat",
		"format":   format.String(),
	}).Debug("Audio sink format set")
}

// StartAudio enables capture. PCM pushed before StartAudio is dropped.
func (e *AudioEndpoint) StartAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEndpointClosed
	}
	e.started = true
	e.paused = false
	return nil
}

// PauseAudio suspends capture without tearing the endpoint down.
func (e *AudioEndpoint) PauseAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEndpointClosed
	}
	e.paused = true
	return nil
}

// ResumeAudio reverses PauseAudio.
func (e *AudioEndpoint) ResumeAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEndpointClosed
	}
	e.paused = false
	return nil
}

// CloseAudio shuts the endpoint down. Safe to call more than once.
func (e *AudioEndpoint) CloseAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.started = false
	return nil
}

// SetEncodedSampleHandler registers the capture output handler. A nil
// handler unregisters.
func (e *AudioEndpoint) SetEncodedSampleHandler(handler mediabridge.EncodedSampleHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sampleHandler = handler
}

// SetPCMHandler registers the handler for decoded remote audio. A nil
// handler unregisters.
func (e *AudioEndpoint) SetPCMHandler(handler PCMHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pcmHandler = handler
}

// SendPCM encodes one PCM frame with the active source format and hands
// it to the registered sample handler. Frames are dropped while the
// endpoint is paused or not yet started.
func (e *AudioEndpoint) SendPCM(pcm []int16) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEndpointClosed
	}
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.paused {
		e.mu.Unlock()
		return nil
	}
	format := e.sourceFormat
	handler := e.sampleHandler
	e.mu.Unlock()

	payload, err := audio.EncodeFrame(format, pcm)
	if err != nil {
		return err
	}

	if handler != nil {
		// G.711 clocks one RTP unit per sample.
		handler(uint32(len(pcm)), payload)
	}
	return nil
}

// GotAudioRTP decodes a received audio payload and forwards the PCM to
// the registered handler. Decode failures are logged and swallowed so a
// hostile packet cannot take the receive path down.
func (e *AudioEndpoint) GotAudioRTP(remote net.Addr, ssrc uint32, sequenceNumber uint16,
	timestamp uint32, payloadType uint8, marker bool, payload []byte) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	format := e.sinkFormat
	decoder := e.decoder
	handler := e.pcmHandler
	e.mu.Unlock()

	if handler == nil {
		return
	}

	e.decMu.Lock()
	pcm, sampleRate, err := decoder.Decode(format, payload)
	e.decMu.Unlock()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "GotAudioRTP",
			"ssrc":         ssrc,
			"sequence":     sequenceNumber,
			"payload_type": payloadType,
			"error":        err.Error(),
		}).Warn("Failed to decode received audio")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "GotAudioRTP",
		"sequence":  sequenceNumber,
		"timestamp": timestamp,
		"samples":   len(pcm),
	}).Trace("Decoded received audio frame")

	handler(remote, sampleRate, pcm)
}
