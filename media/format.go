package media

import "fmt"

// Kind identifies the media kind a format or packet belongs to.
type Kind int

const (
	// KindAudio identifies audio media
	KindAudio Kind = iota
	// KindVideo identifies video media
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Format describes one media format as it appears in a negotiated
// candidate list. The payload type is the RTP payload type carried on
// the wire; static assignments follow RFC 3551, dynamic ones are taken
// from the negotiation input.
type Format struct {
	Kind        Kind
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Channels    uint8
}

// String returns the rtpmap-style representation of the format.
func (f Format) String() string {
	if f.Channels > 1 {
		return fmt.Sprintf("%s/%d/%d (pt=%d)", f.Name, f.ClockRate, f.Channels, f.PayloadType)
	}
	return fmt.Sprintf("%s/%d (pt=%d)", f.Name, f.ClockRate, f.PayloadType)
}

// IsZero reports whether the format is the zero value, meaning no
// format has been negotiated yet.
func (f Format) IsZero() bool {
	return f == Format{}
}

// Well-known formats. Static payload types per RFC 3551; the dynamic
// Opus and VP8 assignments are the conventional defaults and may be
// overridden by negotiation.
var (
	// FormatPCMU is G.711 µ-law at 8 kHz mono.
	FormatPCMU = Format{Kind: KindAudio, PayloadType: 0, Name: "PCMU", ClockRate: 8000, Channels: 1}

	// FormatPCMA is G.711 A-law at 8 kHz mono.
	FormatPCMA = Format{Kind: KindAudio, PayloadType: 8, Name: "PCMA", ClockRate: 8000, Channels: 1}

	// FormatOpus is Opus at 48 kHz. The RTP clock rate is always 48000
	// for Opus regardless of the encoded bandwidth.
	FormatOpus = Format{Kind: KindAudio, PayloadType: 111, Name: "opus", ClockRate: 48000, Channels: 2}

	// FormatVP8 is VP8 video at the standard 90 kHz video clock.
	FormatVP8 = Format{Kind: KindVideo, PayloadType: 96, Name: "VP8", ClockRate: 90000}
)
