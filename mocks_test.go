package mediabridge

import (
	"net"
	"sync"

	pionrtp "github.com/pion/rtp"

	"github.com/avfoundry/mediabridge/media"
)

// mockTransport records every interaction so tests can assert on the
// bridge's exact wiring and call ordering.
type mockTransport struct {
	mu sync.Mutex

	tracks map[MediaKind][]Format

	startCalls  int
	closeCalls  int
	closeReason string

	startErr    error
	addTrackErr error

	sentAudio [][]byte
	sentVideo [][]byte

	audioFormatsHandler func(formats []Format) error
	videoFormatsHandler func(formats []Format) error
	packetHandler       func(remote net.Addr, kind MediaKind, packet *pionrtp.Packet)
	frameHandler        func(remote net.Addr, timestamp uint32, frame []byte)

	audioFormatsSets int
	videoFormatsSets int
	packetSets       int
	frameSets        int
}

func newMockTransport() *mockTransport {
	return &mockTransport{tracks: make(map[MediaKind][]Format)}
}

func (m *mockTransport) AddTrack(kind MediaKind, formats []Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addTrackErr != nil {
		return m.addTrackErr
	}
	m.tracks[kind] = formats
	return nil
}

func (m *mockTransport) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.startCalls++
	return nil
}

func (m *mockTransport) Close(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.closeCalls == 1 {
		m.closeReason = reason
	}
	return nil
}

func (m *mockTransport) SendAudio(durationRTPUnits uint32, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentAudio = append(m.sentAudio, payload)
	return nil
}

func (m *mockTransport) SendVideo(durationRTPUnits uint32, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentVideo = append(m.sentVideo, payload)
	return nil
}

func (m *mockTransport) HasAudio() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracks[KindAudio]
	return ok
}

func (m *mockTransport) HasVideo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracks[KindVideo]
	return ok
}

func (m *mockTransport) SetAudioFormatsHandler(handler func(formats []Format) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioFormatsHandler = handler
	m.audioFormatsSets++
}

func (m *mockTransport) SetVideoFormatsHandler(handler func(formats []Format) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoFormatsHandler = handler
	m.videoFormatsSets++
}

func (m *mockTransport) SetRTPPacketHandler(handler func(remote net.Addr, kind MediaKind, packet *pionrtp.Packet)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packetHandler = handler
	m.packetSets++
}

func (m *mockTransport) SetVideoFrameHandler(handler func(remote net.Addr, timestamp uint32, frame []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameHandler = handler
	m.frameSets++
}

type mockAudioSource struct {
	mu sync.Mutex

	formats []Format
	format  Format

	startCalls  int
	pauseCalls  int
	resumeCalls int
	closeCalls  int

	startErr error

	handler     EncodedSampleHandler
	handlerSets int
}

func newMockAudioSource() *mockAudioSource {
	return &mockAudioSource{formats: []Format{media.FormatPCMU, media.FormatPCMA}}
}

func (m *mockAudioSource) AudioFormats() []Format { return m.formats }

func (m *mockAudioSource) SetAudioSourceFormat(format Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format = format
}

func (m *mockAudioSource) StartAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.startCalls++
	return nil
}

func (m *mockAudioSource) PauseAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	return nil
}

func (m *mockAudioSource) ResumeAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	return nil
}

func (m *mockAudioSource) CloseAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockAudioSource) SetEncodedSampleHandler(handler EncodedSampleHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	m.handlerSets++
}

type receivedAudio struct {
	remote         net.Addr
	ssrc           uint32
	sequenceNumber uint16
	timestamp      uint32
	payloadType    uint8
	marker         bool
	payload        []byte
}

type mockAudioSink struct {
	mu sync.Mutex

	format   Format
	received []receivedAudio
}

func (m *mockAudioSink) SetAudioSinkFormat(format Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format = format
}

func (m *mockAudioSink) GotAudioRTP(remote net.Addr, ssrc uint32, sequenceNumber uint16,
	timestamp uint32, payloadType uint8, marker bool, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, receivedAudio{
		remote:         remote,
		ssrc:           ssrc,
		sequenceNumber: sequenceNumber,
		timestamp:      timestamp,
		payloadType:    payloadType,
		marker:         marker,
		payload:        payload,
	})
}

type mockVideoSource struct {
	mu sync.Mutex

	formats []Format
	format  Format

	startCalls int
	closeCalls int
	keyFrames  int

	startErr error

	raw []media.RawSample

	handler     EncodedSampleHandler
	handlerSets int
}

func newMockVideoSource() *mockVideoSource {
	return &mockVideoSource{formats: []Format{media.FormatVP8}}
}

func (m *mockVideoSource) VideoFormats() []Format { return m.formats }

func (m *mockVideoSource) SetVideoSourceFormat(format Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format = format
}

func (m *mockVideoSource) StartVideo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.startCalls++
	return nil
}

func (m *mockVideoSource) CloseVideo() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockVideoSource) ForceKeyFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyFrames++
}

func (m *mockVideoSource) DeliverRawSample(sample media.RawSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = append(m.raw, sample)
}

func (m *mockVideoSource) SetEncodedSampleHandler(handler EncodedSampleHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	m.handlerSets++
}

type receivedFrame struct {
	remote    net.Addr
	timestamp uint32
	frame     []byte
}

type mockVideoSink struct {
	mu sync.Mutex

	format Format
	frames []receivedFrame

	decodedHandler func(sample media.DecodedSample)
	handlerSets    int
}

func (m *mockVideoSink) SetVideoSinkFormat(format Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format = format
}

func (m *mockVideoSink) GotVideoFrame(remote net.Addr, timestamp uint32, frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, receivedFrame{remote: remote, timestamp: timestamp, frame: frame})
}

func (m *mockVideoSink) SetDecodedSampleHandler(handler func(sample media.DecodedSample)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodedHandler = handler
	m.handlerSets++
}

func fullEndpoints() (*Endpoints, *mockAudioSource, *mockAudioSink, *mockVideoSource, *mockVideoSink) {
	audioSrc := newMockAudioSource()
	audioSink := &mockAudioSink{}
	videoSrc := newMockVideoSource()
	videoSink := &mockVideoSink{}
	return &Endpoints{
		AudioSource: audioSrc,
		AudioSink:   audioSink,
		VideoSource: videoSrc,
		VideoSink:   videoSink,
	}, audioSrc, audioSink, videoSrc, videoSink
}
