package signalmap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a signal map YAML file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal map: %w", err)
	}
	return Parse(data)
}

// Parse builds a Map from raw YAML.
func Parse(data []byte) (*Map, error) {
	var file mapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse signal map: %w", err)
	}
	if len(file.Signals) == 0 {
		return nil, fmt.Errorf("signal map contains no signals")
	}

	m := &Map{
		Signals: file.Signals,
		byName:  make(map[string]*Signal, len(file.Signals)),
		byPin:   make(map[string]*Signal, len(file.Signals)),
	}
	for i := range m.Signals {
		s := &m.Signals[i]
		if s.Name == "" || s.Pin == "" {
			return nil, fmt.Errorf("signal %d is missing a name or pin", i)
		}
		switch s.Direction {
		case DirectionInput, DirectionOutput, DirectionAnalog, DirectionPWM:
		default:
			return nil, fmt.Errorf("signal %s has unknown direction %q", s.Name, s.Direction)
		}
		if _, dup := m.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate signal name %s", s.Name)
		}
		if _, dup := m.byPin[s.Pin]; dup {
			return nil, fmt.Errorf("pin %s mapped to more than one signal", s.Pin)
		}
		m.byName[s.Name] = s
		m.byPin[s.Pin] = s
	}
	return m, nil
}

// ByName resolves a logical signal name to its definition.
func (m *Map) ByName(name string) (*Signal, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// ByPin resolves a wire-level pin reference back to its signal.
func (m *Map) ByPin(pin string) (*Signal, bool) {
	s, ok := m.byPin[pin]
	return s, ok
}

// Pollable returns the signals the PollingScheduler should read each tick.
// Output lines are only reported back on explicit reads or wrapper pushes,
// so they are polled too unless opted out.
func (m *Map) Pollable() []Signal {
	out := make([]Signal, 0, len(m.Signals))
	for _, s := range m.Signals {
		if s.NoPoll {
			continue
		}
		out = append(out, s)
	}
	return out
}
