package media

// PixelFormat identifies the pixel layout of a raw video sample.
type PixelFormat int

const (
	// PixelFormatI420 is planar YUV 4:2:0, the only layout the
	// bundled generators and endpoints produce.
	PixelFormatI420 PixelFormat = iota
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	default:
		return "unknown"
	}
}

// RawSample is an unencoded video frame handed to a video source's
// external injection point, typically by the hold-substitute test
// pattern generator. The receiving source runs it through its own
// encoder pipeline exactly as if it had captured the frame itself.
type RawSample struct {
	// DurationMS is the display duration of the frame in milliseconds.
	DurationMS  uint32
	Width       int
	Height      int
	PixelFormat PixelFormat
	Data        []byte
}

// DecodedSample is a decoded video frame emitted by a video sink after
// it has run a received frame through its decoder.
type DecodedSample struct {
	Width       int
	Height      int
	Stride      int
	PixelFormat PixelFormat
	Data        []byte
}

// I420Size returns the byte length of an I420 frame with the given
// dimensions.
func I420Size(width, height int) int {
	return width*height + 2*((width/2)*(height/2))
}
