// Package rtp provides the bundled wire-level transport session for
// mediabridge: a single UDP socket carrying both media kinds, with
// pion/rtp packetization, RFC 3550 randomized SSRC/sequence/timestamp
// state per track, marker-bit video frame assembly, and negotiation
// input taken from SDP session descriptions via pion/sdp.
//
// The Transport implements the mediabridge.Transport contract. It is a
// reference transport: SRTP, jitter buffering and NAT traversal are
// deliberately out of scope and belong to a production transport.
package rtp
