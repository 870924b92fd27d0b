// Package audio provides the hold-substitute audio generator and the
// codec helpers shared by the bundled endpoints.
//
// The MusicSource produces 8 kHz mono PCM in 20 ms frames (synthesized
// music, silence, white noise or a sine tone depending on its mode)
// and encodes each frame with the negotiated G.711 variant before
// emitting it. The codec helpers wrap zaf/g711 for G.711 encode/decode
// and pion/opus for Opus decode on the sink side.
package audio
