package mediabridge

// Config carries the transport bind parameters forwarded to the bundled
// RTP transport's constructor when a bridge is created with New.
type Config struct {
	// BindAddr is the local address the transport listens on.
	BindAddr string

	// BindPort is the local UDP port. Zero selects an ephemeral port.
	BindPort int
}

// DefaultConfig returns a configuration that binds an ephemeral UDP
// port on all interfaces.
func DefaultConfig() Config {
	return Config{
		BindAddr: "0.0.0.0",
		BindPort: 0,
	}
}
