package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/hilworks/arduino_bridge/pkg/wire"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by WriteLine outside the Connected state.
var ErrNotConnected = fmt.Errorf("transport session not connected")

// Session owns the single channel to the hardware wrapper: connect,
// handshake, reconnect with backoff, and the serialized writer. At most one
// underlying connection is live at any instant; a reconnect replaces it.
//
// Lifecycle: Disconnected → Connecting → Handshaking → Connected →
// Reconnecting → Connecting → ... Close() is terminal and reachable from
// any state.
type Session struct {
	transport Transport
	cfg       SessionConfig
	backoff   *Backoff

	// onLine receives every inbound line while connected (and any
	// non-handshake lines seen during the handshake).
	onLine func(string)
	// onState receives lifecycle transitions with the transport description.
	onState func(State, string)

	mu     sync.Mutex
	state  State
	wrMu   sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func NewSession(t Transport, cfg SessionConfig, onLine func(string), onState func(State, string)) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		transport: t,
		cfg:       cfg,
		backoff: &Backoff{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiplier,
		},
		onLine:  onLine,
		onState: onState,
		state:   StateDisconnected,
		closed:  make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

// WriteLine sends one line to the wrapper. Writes are serialized; the
// physical channel has a single writer.
func (s *Session) WriteLine(line string) error {
	if !s.Connected() {
		return ErrNotConnected
	}
	s.wrMu.Lock()
	defer s.wrMu.Unlock()
	return s.transport.WriteLine(line)
}

// Close shuts the session down permanently. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.transport.Close()
	})
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(st, s.transport.Description())
	}
}

// Run drives the connect/reconnect loop until Close. Blocking; callers run
// it in a goroutine.
func (s *Session) Run() {
	defer s.setState(StateDisconnected)

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		s.setState(StateConnecting)
		if err := s.transport.Open(); err != nil {
			logrus.Warnf("Wrapper connection failed: %v", err)
			s.setState(StateReconnecting)
			if !s.sleepBackoff() {
				return
			}
			continue
		}

		if s.serveConnection() {
			return // Close() requested
		}

		s.transport.Close()
		s.setState(StateReconnecting)
		if !s.sleepBackoff() {
			return
		}
	}
}

// serveConnection handshakes and pumps inbound lines until the connection
// drops. Returns true only on explicit shutdown.
func (s *Session) serveConnection() (shutdown bool) {
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := s.transport.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()

	s.setState(StateHandshaking)
	if !s.handshake(lines, readErr) {
		return false
	}

	s.backoff.Reset()
	s.setState(StateConnected)
	logrus.Infof("Wrapper handshake complete on %s", s.transport.Description())

	for {
		select {
		case line := <-lines:
			s.onLine(line)
		case err := <-readErr:
			logrus.Warnf("Wrapper channel lost: %v", err)
			return false
		case <-s.closed:
			return true
		}
	}
}

// handshake sends a liveness probe and waits for the matching pong. Other
// lines arriving meanwhile are forwarded as regular inbound traffic.
func (s *Session) handshake(lines <-chan string, readErr <-chan error) bool {
	probe, err := wire.Encode(wire.Command{Type: wire.CmdPing}, s.cfg.Checksum)
	if err != nil {
		logrus.Errorf("Failed to encode handshake probe: %v", err)
		return false
	}
	s.wrMu.Lock()
	err = s.transport.WriteLine(probe)
	s.wrMu.Unlock()
	if err != nil {
		logrus.Warnf("Handshake write failed: %v", err)
		return false
	}

	deadline := time.NewTimer(s.cfg.HandshakeTimeout)
	defer deadline.Stop()
	for {
		select {
		case line := <-lines:
			resp, perr := wire.Parse(line, false)
			if perr == nil && resp.Category == wire.CatPong {
				return true
			}
			s.onLine(line)
		case err := <-readErr:
			logrus.Warnf("Wrapper channel lost during handshake: %v", err)
			return false
		case <-deadline.C:
			logrus.Warnf("Handshake timed out after %v", s.cfg.HandshakeTimeout)
			return false
		case <-s.closed:
			return false
		}
	}
}

// sleepBackoff waits for the next retry delay. Returns false when the
// session was closed while waiting.
func (s *Session) sleepBackoff() bool {
	delay := s.backoff.Next()
	logrus.Infof("Retrying wrapper connection in %v", delay)
	select {
	case <-time.After(delay):
		return true
	case <-s.closed:
		return false
	}
}
