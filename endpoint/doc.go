// Package endpoint provides software capture and render endpoints that
// satisfy the mediabridge endpoint contracts without touching real
// devices. The audio endpoint encodes application-supplied PCM with
// G.711 and decodes received payloads (G.711 and Opus) back to PCM; the
// video endpoint carries raw I420 frames through a passthrough encoder
// and surfaces received frames as decoded samples.
//
// They serve loopback setups, tests and examples. Hardware capture and
// real video codecs plug in by implementing the same interfaces.
package endpoint
