package rtp

import (
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avfoundry/mediabridge/media"
)

func TestLocalDescriptionCarriesTracks(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU, media.FormatPCMA}))
	require.NoError(t, tr.AddTrack(media.KindVideo, []media.Format{media.FormatVP8}))

	desc, err := tr.LocalDescription()
	require.NoError(t, err)

	assert.Contains(t, desc, "m=audio")
	assert.Contains(t, desc, "m=video")
	assert.Contains(t, desc, "a=rtpmap:0 PCMU/8000")
	assert.Contains(t, desc, "a=rtpmap:8 PCMA/8000")
	assert.Contains(t, desc, "a=rtpmap:96 VP8/90000")
	assert.Contains(t, desc, "c=IN IP4 127.0.0.1")
}

func TestDescriptionExchangeNegotiatesFormats(t *testing.T) {
	offerer := newTestTransport(t)
	answerer := newTestTransport(t)

	require.NoError(t, offerer.AddTrack(media.KindAudio, []media.Format{media.FormatPCMA, media.FormatPCMU}))
	require.NoError(t, answerer.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU, media.FormatPCMA}))

	var negotiated []media.Format
	answerer.SetAudioFormatsHandler(func(formats []media.Format) error {
		negotiated = formats
		return nil
	})

	offer, err := offerer.LocalDescription()
	require.NoError(t, err)
	require.NoError(t, answerer.ApplyRemoteDescription(offer))

	// The offerer's preference order wins: PCMA first.
	require.Len(t, negotiated, 2)
	assert.Equal(t, media.FormatPCMA.PayloadType, negotiated[0].PayloadType)
	assert.Equal(t, "PCMA", negotiated[0].Name)

	// Learning the peer address makes sends possible without manual
	// configuration.
	require.NoError(t, answerer.SendAudio(160, []byte{0xD5}))
}

func TestApplyRemoteDescriptionLearnsAddress(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))

	offer := strings.Join([]string{
		"v=0",
		"o=test 1 1 IN IP4 192.0.2.10",
		"s=call",
		"c=IN IP4 192.0.2.10",
		"t=0 0",
		"m=audio 4000 RTP/AVP 0",
		"a=rtpmap:0 PCMU/8000",
		"",
	}, "\r\n")

	require.NoError(t, tr.ApplyRemoteDescription(offer))

	tr.mu.RLock()
	remote := tr.remote
	tr.mu.RUnlock()
	require.NotNil(t, remote)
	assert.Equal(t, "192.0.2.10", remote.IP.String())
	assert.Equal(t, 4000, remote.Port)
}

func TestApplyRemoteDescriptionStaticPayloadTypes(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU, media.FormatPCMA}))

	var negotiated []media.Format
	tr.SetAudioFormatsHandler(func(formats []media.Format) error {
		negotiated = formats
		return nil
	})

	// No rtpmap lines; the RFC 3551 static table must fill in the names.
	offer := strings.Join([]string{
		"v=0",
		"o=test 1 1 IN IP4 192.0.2.10",
		"s=call",
		"c=IN IP4 192.0.2.10",
		"t=0 0",
		"m=audio 4000 RTP/AVP 8 0",
		"",
	}, "\r\n")

	require.NoError(t, tr.ApplyRemoteDescription(offer))
	require.Len(t, negotiated, 2)
	assert.Equal(t, "PCMA", negotiated[0].Name)
	assert.Equal(t, "PCMU", negotiated[1].Name)
}

func TestApplyRemoteDescriptionHandlerErrorPropagates(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))

	wantErr := errors.New("formats rejected")
	tr.SetAudioFormatsHandler(func(formats []media.Format) error {
		return wantErr
	})

	offer := strings.Join([]string{
		"v=0",
		"o=test 1 1 IN IP4 192.0.2.10",
		"s=call",
		"c=IN IP4 192.0.2.10",
		"t=0 0",
		"m=audio 4000 RTP/AVP 0",
		"a=rtpmap:0 PCMU/8000",
		"",
	}, "\r\n")

	err := tr.ApplyRemoteDescription(offer)
	assert.ErrorIs(t, err, wantErr)
}

func TestApplyRemoteDescriptionRejectsGarbage(t *testing.T) {
	tr := newTestTransport(t)
	assert.Error(t, tr.ApplyRemoteDescription("not an sdp"))
}

func TestApplyRemoteDescriptionIgnoresUnknownMedia(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))

	fired := 0
	tr.SetAudioFormatsHandler(func(formats []media.Format) error {
		fired++
		return nil
	})

	offer := strings.Join([]string{
		"v=0",
		"o=test 1 1 IN IP4 192.0.2.10",
		"s=call",
		"c=IN IP4 192.0.2.10",
		"t=0 0",
		"m=application 4002 RTP/AVP 99",
		"m=audio 4000 RTP/AVP 0",
		"a=rtpmap:0 PCMU/8000",
		"",
	}, "\r\n")

	require.NoError(t, tr.ApplyRemoteDescription(offer))
	assert.Equal(t, 1, fired)
}

func TestIntersectFormatsPreservesOfferOrder(t *testing.T) {
	offered := []media.Format{media.FormatPCMA, media.FormatOpus, media.FormatPCMU}
	local := []media.Format{media.FormatPCMU, media.FormatPCMA}

	got := intersectFormats(offered, local)
	require.Len(t, got, 2)
	assert.Equal(t, "PCMA", got[0].Name)
	assert.Equal(t, "PCMU", got[1].Name)
}

func TestRemoteAddressPrefersMediaLevelConnection(t *testing.T) {
	tr := newTestTransport(t)
	require.NoError(t, tr.AddTrack(media.KindAudio, []media.Format{media.FormatPCMU}))

	offer := strings.Join([]string{
		"v=0",
		"o=test 1 1 IN IP4 192.0.2.10",
		"s=call",
		"c=IN IP4 192.0.2.10",
		"t=0 0",
		"m=audio 4000 RTP/AVP 0",
		"c=IN IP4 192.0.2.20",
		"a=rtpmap:0 PCMU/8000",
		"",
	}, "\r\n")

	require.NoError(t, tr.ApplyRemoteDescription(offer))

	tr.mu.RLock()
	remote := tr.remote
	tr.mu.RUnlock()
	require.NotNil(t, remote)
	assert.Equal(t, net.ParseIP("192.0.2.20").String(), remote.IP.String())
}
