package server

// Inbound observer message types.
const (
	MsgTypeHardwareCommand = "hardware_command"
	MsgTypePing            = "ping"
	MsgTypeGetPinStates    = "get_pin_states"
)

// ClientMessage is one inbound websocket request from an observer.
type ClientMessage struct {
	Type      string `json:"type"`
	Command   string `json:"command,omitempty"`
	Pin       string `json:"pin,omitempty"`
	Value     string `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// PongData echoes the caller's timestamp back.
type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

// DisplaySettings is the PUT /api/display body.
type DisplaySettings struct {
	ShowFrequency bool `json:"show_frequency"`
}
