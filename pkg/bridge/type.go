package bridge

import (
	"errors"
	"time"

	"github.com/hilworks/arduino_bridge/pkg/wire"
)

var (
	ErrCommandTimeout = errors.New("command timed out waiting for a response")
	ErrConnectionLost = errors.New("wrapper connection lost")
	ErrUnknownSignal  = errors.New("payload does not reference a known signal")
)

// Request is one imperative command from a caller (observer or poller).
// Signal may be a logical signal name or a wire pin reference; both resolve
// through the signal map.
type Request struct {
	Command wire.CommandType
	Signal  string
	Value   string
}

// CommandResult resolves a dispatched command exactly once: either a matched
// response with its round-trip latency, or an error.
type CommandResult struct {
	Response *wire.Response
	Latency  time.Duration
	Err      error
}

// PendingCommand is a command written to the wrapper but not yet resolved.
// The wire protocol has no correlation id, so the expected response category
// plus the pin and issue time are all the correlator has to go on.
type PendingCommand struct {
	ID       string
	Type     wire.CommandType
	Category wire.Category
	Signal   string
	Pin      string
	Line     string
	IssuedAt time.Time

	result chan CommandResult
}

// Config tunes the engine.
type Config struct {
	PollInterval   time.Duration
	CommandTimeout time.Duration
	Checksum       bool
	ShowFrequency  bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 2 * time.Second
	}
	return c
}

// Event payloads.

type ConnectionStatusData struct {
	Connected bool   `json:"connected"`
	Transport string `json:"transport,omitempty"`
	State     string `json:"state"`
}

type CommandSentData struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Signal  string `json:"signal,omitempty"`
	Pin     string `json:"pin,omitempty"`
	Value   string `json:"value,omitempty"`
	Line    string `json:"line"`
}

type CommandResponseData struct {
	ID        string  `json:"id"`
	Command   string  `json:"command"`
	Signal    string  `json:"signal,omitempty"`
	Pin       string  `json:"pin,omitempty"`
	Response  string  `json:"response,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
}

type PinUpdateData struct {
	Signal   string   `json:"signal"`
	PinState PinState `json:"pinState"`
}

type SnapshotData struct {
	Connected bool                `json:"connected"`
	Transport string              `json:"transport,omitempty"`
	Pins      map[string]PinState `json:"pins"`
}

type ErrorData struct {
	Error string `json:"error"`
}
