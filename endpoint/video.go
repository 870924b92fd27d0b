package endpoint

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge"
	"github.com/avfoundry/mediabridge/media"
	"github.com/avfoundry/mediabridge/video"
)

// VideoEndpoint is a software video device carrying raw I420 frames.
// The capture side runs a passthrough encoder: the encoded sample is
// the raw frame, every frame self-contained, which keeps loopback and
// test setups codec-free. The render side surfaces received frames as
// decoded samples with the endpoint's configured geometry.
type VideoEndpoint struct {
	mu sync.Mutex

	formats      []media.Format
	sourceFormat media.Format
	sinkFormat   media.Format

	width  int
	height int

	started bool
	closed  bool

	keyFrameRequests int

	sampleHandler  mediabridge.EncodedSampleHandler
	decodedHandler func(sample media.DecodedSample)
}

var (
	_ mediabridge.VideoSource = (*VideoEndpoint)(nil)
	_ mediabridge.VideoSink   = (*VideoEndpoint)(nil)
)

// NewVideoEndpoint creates an endpoint for the given frame geometry.
// Non-positive dimensions fall back to 640x480. With no formats it
// defaults to VP8.
func NewVideoEndpoint(width, height int, formats ...media.Format) *VideoEndpoint {
	if width <= 0 || height <= 0 {
		width, height = video.FrameWidth, video.FrameHeight
	}
	if len(formats) == 0 {
		formats = []media.Format{media.FormatVP8}
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewVideoEndpoint",
		"width":    width,
		"height":   height,
	}).Debug("Creating video endpoint")

	return &VideoEndpoint{
		formats:      append([]media.Format(nil), formats...),
		sourceFormat: formats[0],
		sinkFormat:   formats[0],
		width:        width,
		height:       height,
	}
}

// VideoFormats returns the endpoint's capabilities in preference order.
func (e *VideoEndpoint) VideoFormats() []media.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]media.Format(nil), e.formats...)
}

// SetVideoSourceFormat switches the capture side to the negotiated
// format.
func (e *VideoEndpoint) SetVideoSourceFormat(format media.Format) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sourceFormat = format

	logrus.WithFields(logrus.Fields{
		"function": "SetVideoSourceFormat",
		"format":   format.String(),
	}).Debug("Video source format set")
}

// SetVideoSinkFormat switches the render side to the negotiated format.
func (e *VideoEndpoint) SetVideoSinkFormat(format media.Format) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinkFormat = format

	logrus.WithFields(logrus.Fields{
		"function": "SetVideoSinkFormat",
		"format":   format.String(),
	}).Debug("Video sink format set")
}

// StartVideo enables the capture path.
func (e *VideoEndpoint) StartVideo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEndpointClosed
	}
	e.started = true
	return nil
}

// CloseVideo shuts the endpoint down. Safe to call more than once.
func (e *VideoEndpoint) CloseVideo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.started = false
	return nil
}

// ForceKeyFrame requests a self-contained next frame. The passthrough
// encoder emits only self-contained frames, so the request is recorded
// and satisfied by the next frame automatically.
func (e *VideoEndpoint) ForceKeyFrame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyFrameRequests++

	logrus.WithFields(logrus.Fields{
		"function": "ForceKeyFrame",
		"requests": e.keyFrameRequests,
	}).Debug("Key frame requested")
}

// KeyFrameRequests returns how many key frame requests the endpoint has
// received.
func (e *VideoEndpoint) KeyFrameRequests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keyFrameRequests
}

// SetEncodedSampleHandler registers the capture output handler. A nil
// handler unregisters.
func (e *VideoEndpoint) SetEncodedSampleHandler(handler mediabridge.EncodedSampleHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sampleHandler = handler
}

// SetDecodedSampleHandler registers the handler for received frames. A
// nil handler unregisters.
func (e *VideoEndpoint) SetDecodedSampleHandler(handler func(sample media.DecodedSample)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decodedHandler = handler
}

// DeliverRawSample runs one raw frame through the capture pipeline.
// Frames arriving before StartVideo or after CloseVideo are dropped.
func (e *VideoEndpoint) DeliverRawSample(sample media.RawSample) {
	e.mu.Lock()
	if e.closed || !e.started {
		e.mu.Unlock()
		return
	}
	handler := e.sampleHandler
	e.mu.Unlock()

	if handler == nil {
		return
	}

	// Video tracks clock at 90 kHz, 90 units per millisecond.
	handler(sample.DurationMS*90, sample.Data)

	logrus.WithFields(logrus.Fields{
		"function": "DeliverRawSample",
		"width":    sample.Width,
		"height":   sample.Height,
		"size":     len(sample.Data),
	}).Trace("Raw video frame encoded")
}

// GotVideoFrame surfaces one received frame as a decoded sample. Frames
// whose size does not match the configured geometry are dropped.
func (e *VideoEndpoint) GotVideoFrame(remote net.Addr, timestamp uint32, frame []byte) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	width, height := e.width, e.height
	handler := e.decodedHandler
	e.mu.Unlock()

	if handler == nil {
		return
	}

	if len(frame) != media.I420Size(width, height) {
		logrus.WithFields(logrus.Fields{
			"function": "GotVideoFrame",
			"size":     len(frame),
			"expected": media.I420Size(width, height),
		}).Warn("Dropping video frame with unexpected size")
		return
	}

	handler(media.DecodedSample{
		Width:       width,
		Height:      height,
		Stride:      width,
		PixelFormat: media.PixelFormatI420,
		Data:        frame,
	})

	logrus.WithFields(logrus.Fields{
		"function":  "GotVideoFrame",
		"timestamp": timestamp,
		"size":      len(frame),
	}).Trace("Video frame rendered")
}
