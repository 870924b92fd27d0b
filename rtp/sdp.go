package rtp

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"

	"github.com/avfoundry/mediabridge/media"
)

// LocalDescription renders the transport's tracks as an SDP offer. The
// connection address is the bound socket address, so callers binding
// the wildcard address should rewrite it before publishing the offer.
func (t *Transport) LocalDescription() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return "", ErrTransportClosed
	}

	local, ok := t.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("rtp: unexpected local address type %T", t.conn.LocalAddr())
	}
	addr := local.IP.String()
	if local.IP == nil || local.IP.IsUnspecified() {
		addr = "127.0.0.1"
	}

	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "mediabridge",
			SessionID:      uint64(randomUint32()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "mediabridge session",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: addr},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	for _, tr := range []*track{t.audio, t.video} {
		if tr == nil {
			continue
		}
		desc.MediaDescriptions = append(desc.MediaDescriptions, mediaDescription(tr, local.Port))
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal SDP: %w", err)
	}
	return string(raw), nil
}

func mediaDescription(tr *track, port int) *sdp.MediaDescription {
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  tr.kind.String(),
			Port:   sdp.RangedPort{Value: port},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, f := range tr.formats {
		pt := strconv.Itoa(int(f.PayloadType))
		md.MediaName.Formats = append(md.MediaName.Formats, pt)
		md.Attributes = append(md.Attributes, sdp.Attribute{
			Key:   "rtpmap",
			Value: pt + " " + rtpmapValue(f),
		})
	}
	md.Attributes = append(md.Attributes, sdp.Attribute{Key: "sendrecv"})
	return md
}

func rtpmapValue(f media.Format) string {
	v := fmt.Sprintf("%s/%d", f.Name, f.ClockRate)
	if f.Kind == media.KindAudio && f.Channels > 1 {
		v += "/" + strconv.Itoa(int(f.Channels))
	}
	return v
}

// ApplyRemoteDescription parses the peer's SDP, learns the peer address,
// intersects the offered payload formats with each track's local
// capabilities and fires the format handlers with the surviving list in
// the peer's preference order. A handler error aborts and is returned.
func (t *Transport) ApplyRemoteDescription(description string) error {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(description)); err != nil {
		return fmt.Errorf("failed to parse SDP: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}

	type pending struct {
		handler func([]media.Format) error
		formats []media.Format
		kind    media.Kind
	}
	var fires []pending

	for _, md := range desc.MediaDescriptions {
		var tr *track
		var handler func([]media.Format) error
		switch md.MediaName.Media {
		case "audio":
			tr, handler = t.audio, t.audioFormatsHandler
		case "video":
			tr, handler = t.video, t.videoFormatsHandler
		default:
			continue
		}
		if tr == nil {
			logrus.WithFields(logrus.Fields{
				"function":   "ApplyRemoteDescription",
				"session_id": t.id,
				"media":      md.MediaName.Media,
			}).Debug("Ignoring media section without a local track")
			continue
		}

		offered := parseMediaFormats(tr.kind, md)
		negotiated := intersectFormats(offered, tr.formats)
		tr.negotiated = negotiated

		if addr := remoteAddress(desc, md); addr != nil {
			t.remote = addr
		}

		logrus.WithFields(logrus.Fields{
			"function":   "ApplyRemoteDescription",
			"session_id": t.id,
			"kind":       tr.kind.String(),
			"offered":    len(offered),
			"negotiated": len(negotiated),
		}).Debug("Remote description applied to track")

		fires = append(fires, pending{handler: handler, formats: negotiated, kind: tr.kind})
	}
	t.mu.Unlock()

	for _, p := range fires {
		if p.handler == nil {
			continue
		}
		if err := p.handler(p.formats); err != nil {
			return fmt.Errorf("%s formats handler: %w", p.kind.String(), err)
		}
	}
	return nil
}

// remoteAddress resolves the peer address for a media section, with the
// media-level connection line taking precedence over the session level.
func remoteAddress(desc *sdp.SessionDescription, md *sdp.MediaDescription) *net.UDPAddr {
	port := md.MediaName.Port.Value
	if port == 0 {
		return nil
	}
	var host string
	if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
		host = md.ConnectionInformation.Address.Address
	} else if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		host = desc.ConnectionInformation.Address.Address
	}
	if host == "" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	return &net.UDPAddr{IP: ip, Port: port}
}

// parseMediaFormats materializes the m-line format list, in order,
// using rtpmap attributes where present and the RFC 3551 static table
// otherwise.
func parseMediaFormats(kind media.Kind, md *sdp.MediaDescription) []media.Format {
	rtpmaps := make(map[uint8]string)
	for _, attr := range md.Attributes {
		if attr.Key != "rtpmap" {
			continue
		}
		ptStr, rest, ok := strings.Cut(attr.Value, " ")
		if !ok {
			continue
		}
		pt, err := strconv.ParseUint(ptStr, 10, 8)
		if err != nil {
			continue
		}
		rtpmaps[uint8(pt)] = rest
	}

	var formats []media.Format
	for _, ptStr := range md.MediaName.Formats {
		pt, err := strconv.ParseUint(ptStr, 10, 8)
		if err != nil {
			continue
		}
		f := media.Format{Kind: kind, PayloadType: uint8(pt)}
		if rm, ok := rtpmaps[uint8(pt)]; ok {
			parts := strings.Split(rm, "/")
			f.Name = parts[0]
			if len(parts) > 1 {
				if clock, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
					f.ClockRate = uint32(clock)
				}
			}
			if len(parts) > 2 {
				if ch, err := strconv.ParseUint(parts[2], 10, 8); err == nil {
					f.Channels = uint8(ch)
				}
			}
		} else if static, ok := staticPayloadFormat(kind, uint8(pt)); ok {
			f = static
		}
		formats = append(formats, f)
	}
	return formats
}

// staticPayloadFormat covers the RFC 3551 static assignments the bridge
// cares about, for peers that omit rtpmap lines.
func staticPayloadFormat(kind media.Kind, pt uint8) (media.Format, bool) {
	if kind != media.KindAudio {
		return media.Format{}, false
	}
	switch pt {
	case 0:
		return media.FormatPCMU, true
	case 8:
		return media.FormatPCMA, true
	}
	return media.Format{}, false
}

// intersectFormats keeps the offered formats the local track can serve,
// preserving the offer order. Matching is by payload type for dynamic
// types with equal names, or by name and clock rate.
func intersectFormats(offered, local []media.Format) []media.Format {
	var out []media.Format
	for _, o := range offered {
		for _, l := range local {
			if formatsMatch(o, l) {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

func formatsMatch(a, b media.Format) bool {
	if a.PayloadType == b.PayloadType && (a.Name == "" || b.Name == "" || strings.EqualFold(a.Name, b.Name)) {
		return true
	}
	return a.Name != "" && strings.EqualFold(a.Name, b.Name) && a.ClockRate == b.ClockRate
}
