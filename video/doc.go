// Package video provides the hold-substitute video generator.
//
// The TestPatternSource renders a looping I420 test pattern and injects
// raw frames into the real video source's encoder pipeline, so the
// remote party keeps receiving decodable video while the session is on
// hold. The pattern has a normal and an inverted variant, and the frame
// rate drops to a fixed low value while on hold to save bandwidth.
package video
