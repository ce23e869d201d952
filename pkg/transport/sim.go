package transport

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// SimTransport is an in-memory Transport. Lines written to it are recorded
// and optionally answered by a Responder, which lets tests script the
// wrapper's side of the conversation and lets the bridge run without
// hardware attached.
type SimTransport struct {
	// Responder synthesizes the wrapper's reply lines for one outbound
	// line. Nil means no automatic replies.
	Responder func(line string) []string

	mu      sync.Mutex
	open    bool
	inbound chan string
	writes  []string
	openErr error
}

func NewSimTransport() *SimTransport {
	return &SimTransport{}
}

func (s *SimTransport) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		err := s.openErr
		s.openErr = nil
		return err
	}
	s.open = true
	s.inbound = make(chan string, 256)
	return nil
}

func (s *SimTransport) ReadLine() (string, error) {
	s.mu.Lock()
	ch := s.inbound
	s.mu.Unlock()
	if ch == nil {
		return "", fmt.Errorf("sim transport not open")
	}
	line, ok := <-ch
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (s *SimTransport) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return fmt.Errorf("sim transport not open")
	}
	s.writes = append(s.writes, line)
	if s.Responder != nil {
		for _, reply := range s.Responder(line) {
			select {
			case s.inbound <- reply:
			default:
			}
		}
	}
	return nil
}

func (s *SimTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	close(s.inbound)
	return nil
}

func (s *SimTransport) Description() string {
	return "sim:wrapper"
}

// Inject queues an unsolicited inbound line, as if the wrapper pushed it.
func (s *SimTransport) Inject(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	select {
	case s.inbound <- line:
	default:
	}
}

// Drop simulates an unexpected channel closure.
func (s *SimTransport) Drop() {
	s.Close()
}

// FailNextOpen makes the next Open attempt fail with err.
func (s *SimTransport) FailNextOpen(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

// Writes returns a copy of every line written so far.
func (s *SimTransport) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	copy(out, s.writes)
	return out
}

// NewSimWrapper returns a SimTransport with a built-in DUT model: digital
// pins default LOW, ADC channels report a slowly stepping value, PWM duty
// and frequency are remembered across reads.
func NewSimWrapper() *SimTransport {
	sim := NewSimTransport()
	var mu sync.Mutex
	pins := make(map[string]string)
	duty := make(map[string]string)
	freq := make(map[string]string)
	adcStep := 0

	sim.Responder = func(line string) []string {
		// Checksum suffixes are transparent to the model
		if idx := strings.LastIndex(line, "*"); idx >= 0 && len(line)-idx == 5 {
			line = line[:idx]
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		switch strings.ToUpper(tokens[0]) {
		case "PING":
			return []string{"PONG"}
		case "READ_PIN":
			if len(tokens) < 2 {
				return []string{"ERR missing_pin"}
			}
			v, ok := pins[tokens[1]]
			if !ok {
				v = "LOW"
			}
			return []string{fmt.Sprintf("PIN %s %s", tokens[1], v)}
		case "WRITE_PIN":
			if len(tokens) < 3 {
				return []string{"ERR missing_value"}
			}
			pins[tokens[1]] = tokens[2]
			return []string{"OK"}
		case "READ_ADC":
			if len(tokens) < 2 {
				return []string{"ERR missing_pin"}
			}
			adcStep = (adcStep + 7) % 64
			return []string{fmt.Sprintf("ADC %s %d", tokens[1], 512+adcStep)}
		case "READ_PWM":
			if len(tokens) < 2 {
				return []string{"ERR missing_pin"}
			}
			d, ok := duty[tokens[1]]
			if !ok {
				d = "0"
			}
			return []string{fmt.Sprintf("PWM %s %s", tokens[1], d)}
		case "SET_PWM":
			if len(tokens) < 3 {
				return []string{"ERR missing_value"}
			}
			if _, err := strconv.Atoi(tokens[2]); err != nil {
				return []string{"ERR bad_duty"}
			}
			duty[tokens[1]] = tokens[2]
			return []string{"OK"}
		case "SET_FREQ":
			if len(tokens) < 3 {
				return []string{"ERR missing_value"}
			}
			freq[tokens[1]] = tokens[2]
			return []string{fmt.Sprintf("FREQ %s %s", tokens[1], tokens[2])}
		case "STATUS":
			return []string{"STATUS ok sim"}
		case "INFO":
			return []string{"INFO sim-wrapper 1.0"}
		}
		return []string{"ERR unknown_command"}
	}
	return sim
}
