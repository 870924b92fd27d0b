// Package media defines the shared media types used across mediabridge:
// format descriptions for negotiated codecs, media kind classification,
// and raw/decoded sample containers exchanged between endpoints, the
// hold-substitute generators, and the transport session.
//
// The package is a leaf dependency: every other mediabridge package
// imports it, and it imports nothing from the module.
package media
