package rtp

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avfoundry/mediabridge/media"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := NewTransport("127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close("test done") })
	return tr
}

func connectPair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	a := newTestTransport(t)
	b := newTestTransport(t)
	a.SetRemoteAddr(b.LocalAddr().(*net.UDPAddr))
	b.SetRemoteAddr(a.LocalAddr().(*net.UDPAddr))
	return a, b
}

type packetRecorder struct {
	mu      sync.Mutex
	packets []*pionrtp.Packet
	kinds   []media.Kind
	notify  chan struct{}
}

func newPacketRecorder() *packetRecorder {
	return &packetRecorder{notify: make(chan struct{}, 64)}
}

func (r *packetRecorder) handle(remote net.Addr, kind media.Kind, packet *pionrtp.Packet) {
	r.mu.Lock()
	r.packets = append(r.packets, packet)
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *packetRecorder) wait(t *testing.T, n int) []*pionrtp.Packet {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		count := len(r.packets)
		r.mu.Unlock()
		if count >= n {
			break
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("Timed out waiting for %d packets, got %d", n, count)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*pionrtp.Packet(nil), r.packets...)
}

func TestAddTrackRules(t *testing.T) {
	tr := newTestTransport(t)

	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))
	assert.True(t, tr.HasAudio())
	assert.False(t, tr.HasVideo())

	err := tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMA})
	assert.ErrorIs(t, err, ErrTrackExists)

	err = tr.AddTrack(media.KindVideo, nil)
	assert.ErrorIs(t, err, ErrNoFormats)

	require.NoError(t, tr.Start())
	err = tr.AddTrack(media.KindVideo, []media.Format{media.FormatVP8})
	assert.ErrorIs(t, err, ErrTransportStarted)
}

func TestSendPreconditions(t *testing.T) {
	tr := newTestTransport(t)

	err := tr.SendAudio(160, []byte{0xFF})
	assert.ErrorIs(t, err, ErrNoTrack)

	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))
	err = tr.SendAudio(160, []byte{0xFF})
	assert.ErrorIs(t, err, ErrNoRemoteAddress)
}

func TestCloseIsIdempotent(t *testing.T) {
	tr, err := NewTransport("127.0.0.1", 0)
	require.NoError(t, err)
	require.NoError(t, tr.Start())

	require.NoError(t, tr.Close("first"))
	require.NoError(t, tr.Close("second"))

	assert.ErrorIs(t, tr.Start(), ErrTransportClosed)
	assert.ErrorIs(t, tr.SendAudio(160, nil), ErrTransportClosed)
}

func TestAudioLoopbackPreservesHeaders(t *testing.T) {
	sender, receiver := connectPair(t)

	require.NoError(t, sender.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))
	require.NoError(t, receiver.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))

	recorder := newPacketRecorder()
	receiver.SetRTPPacketHandler(recorder.handle)
	require.NoError(t, receiver.Start())

	payload1 := bytes.Repeat([]byte{0xFF}, 160)
	payload2 := bytes.Repeat([]byte{0x7F}, 160)
	require.NoError(t, sender.SendAudio(160, payload1))
	require.NoError(t, sender.SendAudio(160, payload2))

	packets := recorder.wait(t, 2)
	require.Len(t, packets, 2)

	assert.Equal(t, media.KindAudio, recorder.kinds[0])
	assert.Equal(t, uint8(0), packets[0].PayloadType)
	assert.Equal(t, payload1, packets[0].Payload)
	assert.Equal(t, payload2, packets[1].Payload)

	// Consecutive samples advance sequence by one and timestamp by the
	// sample duration, on the same SSRC.
	assert.Equal(t, packets[0].SequenceNumber+1, packets[1].SequenceNumber)
	assert.Equal(t, packets[0].Timestamp+160, packets[1].Timestamp)
	assert.Equal(t, packets[0].SSRC, packets[1].SSRC)
}

func TestVideoFrameFragmentationAndAssembly(t *testing.T) {
	sender, receiver := connectPair(t)

	require.NoError(t, sender.AddTrack(media.KindVideo, []media.Format{media.FormatVP8}))
	require.NoError(t, receiver.AddTrack(media.KindVideo, []media.Format{media.FormatVP8}))

	frames := make(chan []byte, 4)
	receiver.SetVideoFrameHandler(func(remote net.Addr, timestamp uint32, frame []byte) {
		frames <- frame
	})
	require.NoError(t, receiver.Start())

	// Three fragments plus a remainder.
	sent := make([]byte, 3*maxPayloadSize+17)
	for i := range sent {
		sent[i] = byte(i)
	}
	require.NoError(t, sender.SendVideo(3000, sent))

	select {
	case frame := <-frames:
		assert.Equal(t, sent, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for reassembled frame")
	}
}

func TestUnknownPayloadTypeDropped(t *testing.T) {
	sender, receiver := connectPair(t)

	require.NoError(t, sender.AddTrack(media.KindAudio, []media.Format{media.FormatPCMA}))
	require.NoError(t, receiver.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))

	recorder := newPacketRecorder()
	receiver.SetRTPPacketHandler(recorder.handle)
	require.NoError(t, receiver.Start())

	// PCMA payload type does not match the receiver's PCMU-only track.
	require.NoError(t, sender.SendAudio(160, bytes.Repeat([]byte{0xD5}, 160)))

	time.Sleep(200 * time.Millisecond)
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Empty(t, recorder.packets)
}
