package signalmap

// Direction of a signal relative to the DUT wrapper.
type Direction string

const (
	DirectionInput  Direction = "input"  // digital line read from the DUT
	DirectionOutput Direction = "output" // digital line driven via the wrapper
	DirectionAnalog Direction = "analog" // ADC channel
	DirectionPWM    Direction = "pwm"    // PWM capable pin (duty + frequency)
)

// Signal is one named logical I/O point from the signal map file.
// The set of signals is immutable for the lifetime of a session.
type Signal struct {
	Name      string    `yaml:"name"`
	Pin       string    `yaml:"pin"`
	Direction Direction `yaml:"direction"`
	// Optional sub-unit of the DUT this signal belongs to (0 = none)
	Subunit int `yaml:"subunit,omitempty"`
	// Optional linear scaling applied to numeric raw values
	Scale float64 `yaml:"scale,omitempty"`
	Unit  string  `yaml:"unit,omitempty"`
	// Opt out of periodic polling (e.g. lines that are write-only)
	NoPoll bool `yaml:"no_poll,omitempty"`
}

// Map is the resolved signal map, indexed both ways.
type Map struct {
	Signals []Signal
	byName  map[string]*Signal
	byPin   map[string]*Signal
}

type mapFile struct {
	Signals []Signal `yaml:"signals"`
}
