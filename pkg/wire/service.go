// Package wire implements the line-oriented protocol spoken by the Arduino
// HIL wrapper. One message per line, plain tokens, no correlation identifier:
// responses can only be classified by their own leading tag, never tied back
// to the request that caused them. Lines may carry a trailing `*XXXX`
// CRC16-ARC checksum which is validated when checksums are enabled.
package wire

import (
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

var outboundWords = map[CommandType]string{
	CmdPing:         "PING",
	CmdReadPin:      "READ_PIN",
	CmdWritePin:     "WRITE_PIN",
	CmdReadADC:      "READ_ADC",
	CmdReadPWM:      "READ_PWM",
	CmdSetPWM:       "SET_PWM",
	CmdSetFrequency: "SET_FREQ",
	CmdStatus:       "STATUS",
	CmdInfo:         "INFO",
}

var inboundTags = map[string]Category{
	"PONG":   CatPong,
	"PIN":    CatPin,
	"ADC":    CatADC,
	"PWM":    CatPWM,
	"FREQ":   CatFreq,
	"OK":     CatOK,
	"ERR":    CatError,
	"STATUS": CatStatus,
	"INFO":   CatInfo,
}

// expectedCategories maps each command type to the response category it
// resolves against. write_pin and set_pwm share the bare CatOK ack; the
// wrapper gives no way to tell those acknowledgements apart.
var expectedCategories = map[CommandType]Category{
	CmdPing:         CatPong,
	CmdReadPin:      CatPin,
	CmdWritePin:     CatOK,
	CmdReadADC:      CatADC,
	CmdReadPWM:      CatPWM,
	CmdSetPWM:       CatOK,
	CmdSetFrequency: CatFreq,
	CmdStatus:       CatStatus,
	CmdInfo:         CatInfo,
}

// ParseCommandType validates a command category string from an observer.
func ParseCommandType(s string) (CommandType, error) {
	t := CommandType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := outboundWords[t]; !ok {
		return "", fmt.Errorf("unknown command type %q", s)
	}
	return t, nil
}

// ExpectedCategory returns the response category a command type waits for.
func ExpectedCategory(t CommandType) Category {
	return expectedCategories[t]
}

// Encode renders a command as one wire line (without line terminator).
// When withChecksum is set a `*XXXX` CRC16-ARC suffix is appended.
func Encode(cmd Command, withChecksum bool) (string, error) {
	word, ok := outboundWords[cmd.Type]
	if !ok {
		return "", fmt.Errorf("unknown command type %q", cmd.Type)
	}
	if cmd.Type.SignalScoped() && cmd.Pin == "" {
		return "", fmt.Errorf("command %s requires a pin", cmd.Type)
	}
	if cmd.Type.TakesArg() && cmd.Arg == "" {
		return "", fmt.Errorf("command %s requires a value", cmd.Type)
	}

	parts := []string{word}
	if cmd.Pin != "" {
		parts = append(parts, cmd.Pin)
	}
	if cmd.Arg != "" {
		parts = append(parts, cmd.Arg)
	}
	line := strings.Join(parts, " ")
	if withChecksum {
		line = AppendChecksum(line)
	}
	return line, nil
}

// Parse classifies one inbound line. With requireChecksum set, lines without
// a valid `*XXXX` suffix are rejected; otherwise a suffix is validated only
// when present.
func Parse(line string, requireChecksum bool) (*Response, error) {
	raw := strings.TrimRight(line, "\r\n")
	body := raw

	if idx := strings.LastIndex(raw, "*"); idx >= 0 && len(raw)-idx == 5 {
		if !validateChecksum(raw[:idx], raw[idx+1:]) {
			return nil, fmt.Errorf("checksum mismatch on line %q", raw)
		}
		body = strings.TrimSpace(raw[:idx])
	} else if requireChecksum {
		return nil, fmt.Errorf("missing checksum on line %q", raw)
	}

	tokens := strings.Fields(body)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	cat, ok := inboundTags[strings.ToUpper(tokens[0])]
	if !ok {
		return nil, fmt.Errorf("unknown message tag %q", tokens[0])
	}

	resp := &Response{Category: cat, Raw: raw}
	rest := tokens[1:]
	switch cat {
	case CatPin, CatADC, CatPWM, CatFreq:
		// Shape: TAG <pin> <value>
		if len(rest) < 2 {
			return nil, fmt.Errorf("%s line missing pin or value: %q", tokens[0], raw)
		}
		resp.Pin = rest[0]
		resp.Value = rest[1]
		resp.Fields = rest[2:]
	case CatError:
		if len(rest) == 0 {
			return nil, fmt.Errorf("ERR line missing message: %q", raw)
		}
		resp.Value = strings.Join(rest, " ")
	default:
		// PONG / OK / STATUS / INFO carry free-form payloads
		if len(rest) > 0 {
			resp.Value = rest[0]
			resp.Fields = rest[1:]
		}
	}
	return resp, nil
}

var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// AppendChecksum suffixes a line with its CRC16-ARC in `*XXXX` form.
func AppendChecksum(line string) string {
	sum := crc16.Checksum([]byte(line), crcTable)
	return fmt.Sprintf("%s*%04X", line, sum)
}

func validateChecksum(body, given string) bool {
	calc := crc16.Checksum([]byte(body), crcTable)
	return strings.EqualFold(given, fmt.Sprintf("%04X", calc))
}
