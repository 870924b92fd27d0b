package rtp

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// randomUint32 draws from crypto/rand, falling back to math/rand if the
// system source fails. RFC 3550 wants SSRC and the initial timestamp to
// be unpredictable across sessions.
func randomUint32() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return mrand.Uint32()
	}
	return binary.BigEndian.Uint32(buf[:])
}

// randomUint16 provides the initial sequence number.
func randomUint16() uint16 {
	return uint16(randomUint32() & 0xFFFF)
}
