package audio

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge/media"
)

// Generator timing. The source always produces 8 kHz mono PCM in 20 ms
// frames, which matches a G.711 RTP payload of 160 bytes.
const (
	// SampleRate is the PCM sample rate of the generator.
	SampleRate = 8000

	// FrameDuration is the length of one emitted frame.
	FrameDuration = 20 * time.Millisecond

	// SamplesPerFrame is the PCM sample count of one frame, which also
	// equals the RTP timestamp increment per frame at an 8 kHz clock.
	SamplesPerFrame = SampleRate / 50
)

// Source selects what the music source generates.
type Source int

const (
	// SourceNone produces nothing. This is the pass-through mode used
	// while the real audio source is active.
	SourceNone Source = iota
	// SourceMusic loops the synthesized hold melody.
	SourceMusic
	// SourceSilence produces digital silence.
	SourceSilence
	// SourceWhiteNoise produces low-level white noise.
	SourceWhiteNoise
	// SourceSineWave produces a continuous 440 Hz tone.
	SourceSineWave
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceMusic:
		return "music"
	case SourceSilence:
		return "silence"
	case SourceWhiteNoise:
		return "white_noise"
	case SourceSineWave:
		return "sine_wave"
	default:
		return "unknown"
	}
}

// MusicSource is the hold-substitute audio generator. It runs one
// ticker goroutine for its whole lifetime, producing frames only while
// the selected source is not SourceNone, and encodes each frame with
// the active format before handing it to the sample handler.
type MusicSource struct {
	mu      sync.Mutex
	source  Source
	format  media.Format
	handler func(durationRTPUnits uint32, sample []byte)

	melody    []int16
	melodyPos int
	phase     float64
	rng       *rand.Rand

	// warnedFormat suppresses repeated encode warnings for the same
	// unsupported format.
	warnedFormat string

	closed bool
	done   chan struct{}
}

// NewMusicSource creates a generator in SourceNone mode with PCMU as
// the active format. The ticker goroutine starts immediately but emits
// nothing until a source is selected.
func NewMusicSource() *MusicSource {
	logrus.WithFields(logrus.Fields{
		"function":       "NewMusicSource",
		"sample_rate":    SampleRate,
		"frame_duration": FrameDuration,
	}).Debug("Creating hold music source")

	s := &MusicSource{
		source: SourceNone,
		format: media.FormatPCMU,
		melody: synthesizeMelody(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// SetSource switches what the generator produces. Switching resets the
// melody position and oscillator phase so the content restarts cleanly.
func (s *MusicSource) SetSource(source Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || source == s.source {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":   "SetSource",
		"old_source": s.source.String(),
		"new_source": source.String(),
	}).Info("Switching hold audio source")

	s.source = source
	s.melodyPos = 0
	s.phase = 0
}

// Source returns the currently selected source.
func (s *MusicSource) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SetFormat switches the encoder to the negotiated format.
func (s *MusicSource) SetFormat(format media.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SetFormat",
		"format":   format.String(),
	}).Debug("Music source format updated")

	s.format = format
}

// Format returns the active format.
func (s *MusicSource) Format() media.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetEncodedSampleHandler registers the handler invoked for every
// encoded frame. A nil handler unregisters.
func (s *MusicSource) SetEncodedSampleHandler(handler func(durationRTPUnits uint32, sample []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Close stops the generator goroutine and drops the handler. Closing
// twice is a no-op.
func (s *MusicSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Debug("Closing hold music source")

	s.closed = true
	s.handler = nil
	close(s.done)
	return nil
}

func (s *MusicSource) run() {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.emit()
		}
	}
}

// emit produces, encodes and delivers one frame. Generation happens
// under the lock; the handler is invoked outside it so a slow consumer
// cannot block SetSource or Close.
func (s *MusicSource) emit() {
	s.mu.Lock()

	if s.closed || s.source == SourceNone || s.handler == nil {
		s.mu.Unlock()
		return
	}

	pcm := s.nextFrame()
	format := s.format
	handler := s.handler

	payload, err := EncodeFrame(format, pcm)
	if err != nil {
		if s.warnedFormat != format.Name {
			s.warnedFormat = format.Name
			logrus.WithFields(logrus.Fields{
				"function": "emit",
				"format":   format.String(),
				"error":    err.Error(),
			}).Warn("Hold audio cannot be encoded for the negotiated format, skipping emission")
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	handler(SamplesPerFrame, payload)
}

// nextFrame generates one 20 ms PCM frame for the selected source.
// Caller holds the lock.
func (s *MusicSource) nextFrame() []int16 {
	pcm := make([]int16, SamplesPerFrame)

	switch s.source {
	case SourceMusic:
		for i := range pcm {
			pcm[i] = s.melody[s.melodyPos]
			s.melodyPos++
			if s.melodyPos >= len(s.melody) {
				s.melodyPos = 0
			}
		}
	case SourceWhiteNoise:
		for i := range pcm {
			pcm[i] = int16(s.rng.Intn(2048) - 1024)
		}
	case SourceSineWave:
		step := 2 * math.Pi * 440 / SampleRate
		for i := range pcm {
			pcm[i] = int16(8000 * math.Sin(s.phase))
			s.phase += step
		}
	case SourceSilence:
		// All-zero PCM encodes to valid G.711 silence.
	}

	return pcm
}

// synthesizeMelody renders the looping hold melody: a slow eight-note
// arpeggio with a decay envelope on every note, around four seconds of
// PCM per loop.
func synthesizeMelody() []int16 {
	notes := []float64{
		392.00, // G4
		440.00, // A4
		493.88, // B4
		587.33, // D5
		493.88, // B4
		440.00, // A4
		392.00, // G4
		329.63, // E4
	}

	const noteDuration = time.Second / 2
	samplesPerNote := int(SampleRate * noteDuration / time.Second)

	melody := make([]int16, 0, len(notes)*samplesPerNote)
	for _, freq := range notes {
		step := 2 * math.Pi * freq / SampleRate
		for i := 0; i < samplesPerNote; i++ {
			envelope := 1 - float64(i)/float64(samplesPerNote)
			sample := 9000 * envelope * math.Sin(step*float64(i))
			melody = append(melody, int16(sample))
		}
	}
	return melody
}
