package wire

// CommandType is an outbound command category accepted by the wrapper.
type CommandType string

const (
	CmdPing         CommandType = "ping"
	CmdReadPin      CommandType = "read_pin"
	CmdWritePin     CommandType = "write_pin"
	CmdReadADC      CommandType = "read_adc"
	CmdReadPWM      CommandType = "read_pwm"
	CmdSetPWM       CommandType = "set_pwm"
	CmdSetFrequency CommandType = "set_frequency"
	CmdStatus       CommandType = "status"
	CmdInfo         CommandType = "info"
)

// Category classifies an inbound line by its own shape. The protocol has no
// command echo, so this tag is all there is to correlate on.
type Category string

const (
	CatPong   Category = "pong"
	CatPin    Category = "pin"
	CatADC    Category = "adc"
	CatPWM    Category = "pwm"
	CatFreq   Category = "freq"
	CatOK     Category = "ok"
	CatError  Category = "error"
	CatStatus Category = "status"
	CatInfo   Category = "info"
)

// Command is one outbound request before encoding.
type Command struct {
	Type CommandType
	Pin  string // empty for pin-less commands (ping, status, info)
	Arg  string // optional value argument (write_pin level, set_pwm duty, ...)
}

// Response is one parsed inbound line.
type Response struct {
	Category Category
	Pin      string   // empty when the category carries no pin
	Value    string   // primary payload value
	Fields   []string // remaining tokens (status/info lines)
	Raw      string
}

// SignalScoped reports whether the command type requires a pin reference.
func (t CommandType) SignalScoped() bool {
	switch t {
	case CmdPing, CmdStatus, CmdInfo:
		return false
	}
	return true
}

// TakesArg reports whether the command type carries a value argument.
func (t CommandType) TakesArg() bool {
	switch t {
	case CmdWritePin, CmdSetPWM, CmdSetFrequency:
		return true
	}
	return false
}
