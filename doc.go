// Package mediabridge binds pluggable audio/video capture and render
// endpoints to a single bidirectional real-time transport session.
//
// The Bridge is the coordinator: it owns the hold-substitute generators
// (a music source for audio and a test pattern source for video), wires
// every event between the endpoints and the transport at construction,
// tracks the session lifecycle, and exposes Start, Close, PutOnHold and
// TakeOffHold. Any subset of the four endpoints may be absent; every
// operation that touches an endpoint is a no-op when that endpoint is
// not configured.
//
// The design follows a small number of rules:
//   - Interface-based collaborators so the bridge can be tested against
//     mocks and run against the bundled rtp.Transport alike
//   - Handler registration is Set-style; the bridge records a symmetric
//     detach for every attach it performs and runs them all at Close
//   - Lifecycle operations are serialized behind one mutex; event
//     forwarding paths are short, lock-free and never return errors
//
// Hold is implemented as source substitution at the sample level rather
// than a transport pause: while on hold the remote party keeps receiving
// a decodable stream (music and a static pattern), so RTP timestamps and
// sequence numbers stay continuous and no renegotiation is needed when
// the hold ends.
package mediabridge
