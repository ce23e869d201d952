package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hilworks/arduino_bridge/pkg/signalmap"
	"github.com/hilworks/arduino_bridge/pkg/wire"
)

// PinState is the last observed state of one signal plus its derived
// presentation fields. Exactly one exists per signal from construction on;
// entries are updated, never deleted.
type PinState struct {
	Signal  string `json:"signal"`
	Pin     string `json:"pin"`
	Subunit int    `json:"subunit,omitempty"`

	Raw     string  `json:"raw"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Unit    string  `json:"unit,omitempty"`

	// PWM pins additionally carry a frequency reading whose presentation
	// depends on the session-level show_frequency flag.
	FreqRaw     string `json:"freq_raw,omitempty"`
	FreqDisplay string `json:"freq_display,omitempty"`

	Stale     bool  `json:"stale"`
	UpdatedAt int64 `json:"updated_at"` // unix ms, 0 until first observation
}

// PinStateCache holds one PinState per signal. It does no locking of its
// own; the engine's single mutex guards every access.
type PinStateCache struct {
	signals       *signalmap.Map
	states        map[string]*PinState
	showFrequency bool
}

func NewPinStateCache(signals *signalmap.Map, showFrequency bool) *PinStateCache {
	c := &PinStateCache{
		signals:       signals,
		states:        make(map[string]*PinState, len(signals.Signals)),
		showFrequency: showFrequency,
	}
	for _, s := range signals.Signals {
		c.states[s.Name] = &PinState{
			Signal:  s.Name,
			Pin:     s.Pin,
			Subunit: s.Subunit,
			Unit:    s.Unit,
			Display: "unknown",
			Stale:   true,
		}
	}
	return c
}

// Update folds one observed value into the cache. It reports true only when
// the stored state actually changed, either in raw value or in derived
// presentation, so identical polling reads cause no broadcast.
func (c *PinStateCache) Update(sig *signalmap.Signal, category wire.Category, raw string, now time.Time) (PinState, bool) {
	st := c.states[sig.Name]

	changed := st.Stale
	if category == wire.CatFreq {
		display := c.freqDisplay(raw)
		if st.FreqRaw != raw || st.FreqDisplay != display {
			changed = true
		}
		st.FreqRaw = raw
		st.FreqDisplay = display
	} else {
		value, display := deriveValue(sig, raw)
		if st.Raw != raw || st.Display != display {
			changed = true
		}
		st.Raw = raw
		st.Value = value
		st.Display = display
	}
	st.Stale = false
	st.UpdatedAt = now.UnixMilli()
	return *st, changed
}

// SetShowFrequency flips the frequency presentation flag and recomputes the
// derived display of every frequency-bearing state. Raw values are untouched
// but a presentation change still counts as a change.
func (c *PinStateCache) SetShowFrequency(show bool) []PinState {
	if c.showFrequency == show {
		return nil
	}
	c.showFrequency = show
	var changed []PinState
	for _, st := range c.states {
		if st.FreqRaw == "" {
			continue
		}
		display := c.freqDisplay(st.FreqRaw)
		if display != st.FreqDisplay {
			st.FreqDisplay = display
			changed = append(changed, *st)
		}
	}
	return changed
}

// MarkStale flags every entry after a transport drop. Values are kept so
// observers still see the last known state across a reconnect.
func (c *PinStateCache) MarkStale() {
	for _, st := range c.states {
		st.Stale = true
	}
}

// Snapshot copies the full cache contents.
func (c *PinStateCache) Snapshot() map[string]PinState {
	out := make(map[string]PinState, len(c.states))
	for name, st := range c.states {
		out[name] = *st
	}
	return out
}

// Get copies one entry.
func (c *PinStateCache) Get(signal string) (PinState, bool) {
	st, ok := c.states[signal]
	if !ok {
		return PinState{}, false
	}
	return *st, true
}

func (c *PinStateCache) freqDisplay(raw string) string {
	if !c.showFrequency {
		return "disabled"
	}
	return raw + " Hz"
}

// deriveValue computes the numeric value and display label for a raw wire
// value according to the signal's direction and scaling rule.
func deriveValue(sig *signalmap.Signal, raw string) (float64, string) {
	switch sig.Direction {
	case signalmap.DirectionInput, signalmap.DirectionOutput:
		level := strings.ToUpper(raw)
		switch level {
		case "HIGH", "1":
			return 1, "HIGH"
		case "LOW", "0":
			return 0, "LOW"
		}
		return 0, level
	default:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, raw
		}
		scale := sig.Scale
		if scale == 0 {
			scale = 1
		}
		v := n * scale
		if sig.Unit != "" {
			return v, fmt.Sprintf("%.2f %s", v, sig.Unit)
		}
		return v, strconv.FormatFloat(v, 'f', -1, 64)
	}
}
