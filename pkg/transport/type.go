package transport

import "time"

// Transport is one physical/serial channel to the hardware wrapper.
// Implementations: SerialTransport (real hardware) and SimTransport
// (in-memory simulated wrapper), selected at construction time.
type Transport interface {
	Open() error
	// ReadLine blocks until the next inbound line or a channel error.
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	Description() string
}

// State is the lifecycle state of a Session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateHandshaking  State = "handshaking"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// SessionConfig tunes the connect/handshake/retry behavior.
type SessionConfig struct {
	HandshakeTimeout  time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
	// Append/require CRC16 suffixes on wire lines
	Checksum bool
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 3 * time.Second
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	return c
}
