package video

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge/media"
)

// Frame geometry and rate limits of the generated pattern.
const (
	// FrameWidth and FrameHeight are the dimensions of every generated
	// frame.
	FrameWidth  = 640
	FrameHeight = 480

	// DefaultFrameRate is the normal generation rate in frames per
	// second.
	DefaultFrameRate = 30

	// HoldFrameRate is the reduced rate used while the session is on
	// hold. The static pattern does not need smooth motion, so a few
	// frames per second keep the remote decoder fed at minimal cost.
	HoldFrameRate = 3

	// MinFrameRate and MaxFrameRate bound SetFrameRate.
	MinFrameRate = 1
	MaxFrameRate = 60
)

// Pattern selects which pattern asset the source renders.
type Pattern int

const (
	// PatternNormal is the regular checkerboard asset.
	PatternNormal Pattern = iota
	// PatternInverted is the luma-inverted variant shown while the
	// session is on hold.
	PatternInverted
)

func (p Pattern) String() string {
	switch p {
	case PatternNormal:
		return "normal"
	case PatternInverted:
		return "inverted"
	default:
		return "unknown"
	}
}

// TestPatternSource generates I420 test pattern frames at a
// configurable rate and hands them to a raw sample handler. It does not
// encode; the consuming video source runs the frames through its own
// encoder pipeline.
type TestPatternSource struct {
	mu         sync.Mutex
	pattern    Pattern
	frameRate  int
	handler    func(sample media.RawSample)
	frameCount uint64

	running bool
	closed  bool
	done    chan struct{}
}

// NewTestPatternSource creates a source with the normal pattern at the
// default frame rate. Frame generation starts with Start.
func NewTestPatternSource() *TestPatternSource {
	logrus.WithFields(logrus.Fields{
		"function":   "NewTestPatternSource",
		"width":      FrameWidth,
		"height":     FrameHeight,
		"frame_rate": DefaultFrameRate,
	}).Debug("Creating test pattern source")

	return &TestPatternSource{
		pattern:   PatternNormal,
		frameRate: DefaultFrameRate,
	}
}

// SetRawSampleHandler registers the handler invoked for every generated
// frame. A nil handler unregisters.
func (s *TestPatternSource) SetRawSampleHandler(handler func(sample media.RawSample)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// SetPattern switches the rendered pattern asset.
func (s *TestPatternSource) SetPattern(pattern Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pattern == s.pattern {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":    "SetPattern",
		"old_pattern": s.pattern.String(),
		"new_pattern": pattern.String(),
	}).Info("Switching test pattern asset")

	s.pattern = pattern
}

// Pattern returns the currently rendered pattern asset.
func (s *TestPatternSource) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern
}

// SetFrameRate changes the generation rate. The running ticker picks up
// the new rate on its next tick.
func (s *TestPatternSource) SetFrameRate(fps int) error {
	if fps < MinFrameRate || fps > MaxFrameRate {
		return ErrInvalidFrameRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "SetFrameRate",
		"old_frame_rate": s.frameRate,
		"new_frame_rate": fps,
	}).Info("Changing test pattern frame rate")

	s.frameRate = fps
	return nil
}

// FrameRate returns the current generation rate.
func (s *TestPatternSource) FrameRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameRate
}

// Running reports whether frame generation is active.
func (s *TestPatternSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins frame generation. Starting an already running source is
// a no-op; starting a closed source is an error.
func (s *TestPatternSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.running {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Start",
		"frame_rate": s.frameRate,
		"pattern":    s.pattern.String(),
	}).Info("Starting test pattern source")

	s.running = true
	s.done = make(chan struct{})
	go s.run(s.done)
	return nil
}

// Close stops frame generation permanently. Closing twice is a no-op.
func (s *TestPatternSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Close",
		"frames_total": s.frameCount,
	}).Debug("Closing test pattern source")

	s.closed = true
	s.handler = nil
	if s.running {
		s.running = false
		close(s.done)
	}
	return nil
}

func (s *TestPatternSource) run(done chan struct{}) {
	interval := s.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.emit()
			// Pick up frame rate changes made while the ticker slept.
			if next := s.tickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (s *TestPatternSource) tickInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Second / time.Duration(s.frameRate)
}

// emit renders one frame and delivers it outside the lock.
func (s *TestPatternSource) emit() {
	s.mu.Lock()

	if s.closed || s.handler == nil {
		s.mu.Unlock()
		return
	}

	handler := s.handler
	frame := renderFrame(s.pattern, s.frameCount)
	duration := uint32(1000 / s.frameRate)
	s.frameCount++
	s.mu.Unlock()

	handler(media.RawSample{
		DurationMS:  duration,
		Width:       FrameWidth,
		Height:      FrameHeight,
		PixelFormat: media.PixelFormatI420,
		Data:        frame,
	})
}

// renderFrame draws one I420 frame: a checkerboard luma plane with a
// scrolling band so consecutive frames differ, and neutral chroma. The
// inverted pattern flips the luma.
func renderFrame(pattern Pattern, frameCount uint64) []byte {
	frame := make([]byte, media.I420Size(FrameWidth, FrameHeight))

	const squareSize = 40
	offset := int(frameCount % FrameHeight)

	for y := 0; y < FrameHeight; y++ {
		for x := 0; x < FrameWidth; x++ {
			var luma byte = 36
			if ((x/squareSize)+(y/squareSize))%2 == 0 {
				luma = 220
			}
			// Scrolling band marking frame progression.
			if y == offset {
				luma = 128
			}
			if pattern == PatternInverted {
				luma = 255 - luma
			}
			frame[y*FrameWidth+x] = luma
		}
	}

	// Neutral chroma planes.
	for i := FrameWidth * FrameHeight; i < len(frame); i++ {
		frame[i] = 128
	}

	return frame
}
