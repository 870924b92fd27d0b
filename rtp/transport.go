package rtp

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge/media"
)

// readBufferSize bounds a single datagram read. Larger packets are
// truncated by the kernel and fail to unmarshal.
const readBufferSize = 1500

// maxPayloadSize is the largest RTP payload sent in one datagram.
// Video samples bigger than this are fragmented across packets sharing
// a timestamp, with the marker bit on the final fragment.
const maxPayloadSize = 1200

// track carries the per-direction RTP state for one media kind on the
// shared socket.
type track struct {
	kind       media.Kind
	formats    []media.Format
	negotiated []media.Format

	ssrc      uint32
	sequence  uint16
	timestamp uint32
}

// payloadFormat picks the format used for outgoing packets: the first
// negotiated format once negotiation happened, otherwise the first
// local capability.
func (t *track) payloadFormat() (media.Format, error) {
	if len(t.negotiated) > 0 {
		return t.negotiated[0], nil
	}
	if len(t.formats) > 0 {
		return t.formats[0], nil
	}
	return media.Format{}, ErrNoFormats
}

// accepts reports whether an incoming payload type belongs to this
// track.
func (t *track) accepts(payloadType uint8) bool {
	active := t.negotiated
	if len(active) == 0 {
		active = t.formats
	}
	for _, f := range active {
		if f.PayloadType == payloadType {
			return true
		}
	}
	return false
}

// Transport is a bundled RTP session over a single UDP socket. Both
// media kinds share the socket; incoming packets are classified by
// payload type against the tracks added before Start.
type Transport struct {
	mu sync.RWMutex

	id     string
	conn   *net.UDPConn
	remote *net.UDPAddr

	audio *track
	video *track

	started bool
	closed  bool
	done    chan struct{}

	audioFormatsHandler func([]media.Format) error
	videoFormatsHandler func([]media.Format) error
	packetHandler       func(remote net.Addr, kind media.Kind, packet *pionrtp.Packet)
	frameHandler        func(remote net.Addr, timestamp uint32, frame []byte)

	// video frame assembly state, owned by the read loop
	frameTimestamp uint32
	frameBuf       []byte
}

// NewTransport binds a UDP socket for a new session. An empty bindAddr
// binds all interfaces; port 0 picks an ephemeral port.
func NewTransport(bindAddr string, port int) (*Transport, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "NewTransport",
		"bind_addr": bindAddr,
		"port":      port,
	}).Debug("Creating RTP transport")

	var ip net.IP
	if bindAddr != "" {
		ip = net.ParseIP(bindAddr)
		if ip == nil {
			return nil, fmt.Errorf("rtp: invalid bind address %q", bindAddr)
		}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind RTP socket: %w", err)
	}

	t := &Transport{
		id:   uuid.NewString(),
		conn: conn,
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewTransport",
		"session_id": t.id,
		"local_addr": conn.LocalAddr().String(),
	}).Info("RTP transport created")

	return t, nil
}

// ID returns the session identifier.
func (t *Transport) ID() string {
	return t.id
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SetRemoteAddr fixes the peer address directly, bypassing SDP. Used
// by tests and static setups.
func (t *Transport) SetRemoteAddr(addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = addr
}

// AddTrack declares a sending/receiving direction for one media kind.
// Tracks must be added before Start and at most once per kind.
func (t *Transport) AddTrack(kind media.Kind, formats []media.Format) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return ErrTransportStarted
	}
	if len(formats) == 0 {
		return ErrNoFormats
	}

	tr := &track{
		kind:      kind,
		formats:   append([]media.Format(nil), formats...),
		ssrc:      randomUint32(),
		sequence:  randomUint16(),
		timestamp: randomUint32(),
	}

	switch kind {
	case media.KindAudio:
		if t.audio != nil {
			return ErrTrackExists
		}
		t.audio = tr
	case media.KindVideo:
		if t.video != nil {
			return ErrTrackExists
		}
		t.video = tr
	default:
		return ErrUnsupportedKind
	}

	logrus.WithFields(logrus.Fields{
		"function":   "AddTrack",
		"session_id": t.id,
		"kind":       kind.String(),
		"formats":    len(formats),
		"ssrc":       tr.ssrc,
	}).Debug("Track added")

	return nil
}

// HasAudio reports whether an audio track was added.
func (t *Transport) HasAudio() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.audio != nil
}

// HasVideo reports whether a video track was added.
func (t *Transport) HasVideo() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.video != nil
}

// SetAudioFormatsHandler registers the callback fired when the remote
// description settles the audio format list. Passing nil unregisters.
func (t *Transport) SetAudioFormatsHandler(handler func([]media.Format) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audioFormatsHandler = handler
}

// SetVideoFormatsHandler registers the callback fired when the remote
// description settles the video format list. Passing nil unregisters.
func (t *Transport) SetVideoFormatsHandler(handler func([]media.Format) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.videoFormatsHandler = handler
}

// SetRTPPacketHandler registers the callback for every parsed incoming
// packet. Passing nil unregisters.
func (t *Transport) SetRTPPacketHandler(handler func(remote net.Addr, kind media.Kind, packet *pionrtp.Packet)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.packetHandler = handler
}

// SetVideoFrameHandler registers the callback for reassembled video
// frames. Passing nil unregisters.
func (t *Transport) SetVideoFrameHandler(handler func(remote net.Addr, timestamp uint32, frame []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frameHandler = handler
}

// Start launches the receive loop. Tracks and handlers registered
// before Start are live from the first packet.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return nil
	}

	t.started = true
	t.done = make(chan struct{})
	go t.readLoop(t.done)

	logrus.WithFields(logrus.Fields{
		"function":   "Start",
		"session_id": t.id,
	}).Info("RTP transport started")

	return nil
}

// Close tears the session down. Safe to call more than once; the
// reason is recorded on the first call only.
func (t *Transport) Close(reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	done := t.done
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Close",
		"session_id": t.id,
		"reason":     reason,
	}).Info("Closing RTP transport")

	err := t.conn.Close()
	if done != nil {
		<-done
	}
	if err != nil {
		return fmt.Errorf("failed to close RTP socket: %w", err)
	}
	return nil
}

// SendAudio packetizes one encoded audio sample as a single packet and
// advances the audio track clock by durationRTPUnits.
func (t *Transport) SendAudio(durationRTPUnits uint32, payload []byte) error {
	return t.send(media.KindAudio, durationRTPUnits, payload)
}

// SendVideo packetizes one encoded video sample, fragmenting it to fit
// the network. All fragments carry the same timestamp; the marker bit
// on the last one marks the frame boundary for reassembly.
func (t *Transport) SendVideo(durationRTPUnits uint32, payload []byte) error {
	return t.send(media.KindVideo, durationRTPUnits, payload)
}

func (t *Transport) send(kind media.Kind, durationRTPUnits uint32, payload []byte) error {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}

	tr := t.audio
	if kind == media.KindVideo {
		tr = t.video
	}
	if tr == nil {
		t.mu.Unlock()
		return ErrNoTrack
	}
	if t.remote == nil {
		t.mu.Unlock()
		return ErrNoRemoteAddress
	}

	format, err := tr.payloadFormat()
	if err != nil {
		t.mu.Unlock()
		return err
	}

	var packets []*pionrtp.Packet
	for offset := 0; ; offset += maxPayloadSize {
		end := offset + maxPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		packets = append(packets, &pionrtp.Packet{
			Header: pionrtp.Header{
				Version:        2,
				Marker:         end == len(payload),
				PayloadType:    format.PayloadType,
				SequenceNumber: tr.sequence,
				Timestamp:      tr.timestamp,
				SSRC:           tr.ssrc,
			},
			Payload: payload[offset:end],
		})
		tr.sequence++
		if end == len(payload) {
			break
		}
	}
	tr.timestamp += durationRTPUnits
	remote := t.remote
	t.mu.Unlock()

	for _, packet := range packets {
		raw, err := packet.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal RTP packet: %w", err)
		}
		if _, err := t.conn.WriteToUDP(raw, remote); err != nil {
			return fmt.Errorf("failed to send RTP packet: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "send",
		"session_id":   t.id,
		"kind":         kind.String(),
		"packets":      len(packets),
		"timestamp":    packets[0].Timestamp,
		"payload_size": len(payload),
	}).Trace("RTP sample sent")

	return nil
}

// readLoop drains the socket until Close. Packets that fail to parse
// or match no track are dropped.
func (t *Transport) readLoop(done chan struct{}) {
	defer close(done)

	buf := make([]byte, readBufferSize)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function":   "readLoop",
				"session_id": t.id,
				"error":      err.Error(),
			}).Warn("RTP read failed")
			continue
		}

		packet := &pionrtp.Packet{}
		if err := packet.Unmarshal(append([]byte(nil), buf[:n]...)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "readLoop",
				"session_id": t.id,
				"size":       n,
			}).Trace("Dropping malformed RTP packet")
			continue
		}

		t.dispatch(addr, packet)
	}
}

// dispatch classifies a packet by payload type and fires the handlers.
func (t *Transport) dispatch(remote *net.UDPAddr, packet *pionrtp.Packet) {
	t.mu.RLock()
	var kind media.Kind
	switch {
	case t.audio != nil && t.audio.accepts(packet.PayloadType):
		kind = media.KindAudio
	case t.video != nil && t.video.accepts(packet.PayloadType):
		kind = media.KindVideo
	default:
		t.mu.RUnlock()
		logrus.WithFields(logrus.Fields{
			"function":     "dispatch",
			"session_id":   t.id,
			"payload_type": packet.PayloadType,
		}).Trace("Dropping RTP packet with unknown payload type")
		return
	}
	packetHandler := t.packetHandler
	t.mu.RUnlock()

	if packetHandler != nil {
		packetHandler(remote, kind, packet)
	}

	if kind == media.KindVideo {
		t.assembleFrame(remote, packet)
	}
}

// assembleFrame accumulates video payloads sharing a timestamp and
// emits the frame when the marker bit arrives. A timestamp change
// without a marker discards the stale partial frame.
func (t *Transport) assembleFrame(remote *net.UDPAddr, packet *pionrtp.Packet) {
	t.mu.Lock()
	if len(t.frameBuf) > 0 && packet.Timestamp != t.frameTimestamp {
		logrus.WithFields(logrus.Fields{
			"function":   "assembleFrame",
			"session_id": t.id,
			"timestamp":  t.frameTimestamp,
		}).Trace("Discarding incomplete video frame")
		t.frameBuf = t.frameBuf[:0]
	}
	t.frameTimestamp = packet.Timestamp
	t.frameBuf = append(t.frameBuf, packet.Payload...)

	if !packet.Marker {
		t.mu.Unlock()
		return
	}

	frame := append([]byte(nil), t.frameBuf...)
	t.frameBuf = t.frameBuf[:0]
	timestamp := t.frameTimestamp
	frameHandler := t.frameHandler
	t.mu.Unlock()

	if frameHandler != nil {
		frameHandler(remote, timestamp, frame)
	}
}
