package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
	"github.com/zaf/g711"

	"github.com/avfoundry/mediabridge/media"
)

// pcmToBytes converts int16 PCM samples to the little-endian byte
// layout the g711 package operates on.
func pcmToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// bytesToPCM converts little-endian 16-bit PCM bytes to int16 samples.
func bytesToPCM(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return pcm
}

// EncodeFrame encodes one PCM frame with the codec named by the format.
// Only the G.711 variants are supported for encoding; everything else
// returns ErrUnsupportedFormat.
func EncodeFrame(format media.Format, pcm []int16) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPayload
	}

	switch format.Name {
	case "PCMU":
		return g711.EncodeUlaw(pcmToBytes(pcm)), nil
	case "PCMA":
		return g711.EncodeAlaw(pcmToBytes(pcm)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Name)
	}
}

// Decoder decodes received audio payloads to PCM. G.711 variants are
// stateless; Opus decoding keeps state in a pion/opus decoder, so a
// Decoder instance must not be shared between streams.
type Decoder struct {
	opus opus.Decoder
}

// NewDecoder creates a decoder ready for G.711 and Opus payloads.
func NewDecoder() *Decoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewDecoder",
	}).Debug("Creating audio decoder")

	return &Decoder{
		opus: opus.NewDecoder(),
	}
}

// Decode decodes one payload according to the format and returns the
// PCM samples together with their sample rate.
func (d *Decoder) Decode(format media.Format, payload []byte) ([]int16, uint32, error) {
	if len(payload) == 0 {
		return nil, 0, ErrEmptyPayload
	}

	switch format.Name {
	case "PCMU":
		return bytesToPCM(g711.DecodeUlaw(payload)), 8000, nil
	case "PCMA":
		return bytesToPCM(g711.DecodeAlaw(payload)), 8000, nil
	case "opus":
		return d.decodeOpus(payload)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.Name)
	}
}

// decodeOpus decodes an Opus frame with pion/opus. The output buffer is
// sized for 40 ms of 48 kHz stereo, the largest frame the decoder will
// hand back in this configuration.
func (d *Decoder) decodeOpus(payload []byte) ([]int16, uint32, error) {
	output := make([]byte, 1920*2*2)

	bandwidth, isStereo, err := d.opus.Decode(payload, output)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "decodeOpus",
			"error":    err.Error(),
		}).Warn("Opus decode failed")
		return nil, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	// Decode reports no decoded length, only bandwidth and channel
	// layout, so the sample count comes from the buffer size. Frames
	// shorter than the buffer carry trailing zero samples.
	sampleCount := len(output) / 2
	if isStereo {
		sampleCount /= 2
	}

	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(output[i*2]) | int16(output[i*2+1])<<8
	}

	return pcm, uint32(bandwidth.SampleRate()), nil
}
