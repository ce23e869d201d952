package broadcast

// Event types pushed to observers.
const (
	TypeInitialState     = "initial_state"
	TypeConnectionStatus = "connection_status"
	TypePinUpdate        = "pin_update"
	TypeCommandSent      = "arduino_command_sent"
	TypeCommandResponse  = "arduino_command_response"
	TypeError            = "error"
	TypePong             = "pong"
)

// Event is the JSON envelope every observer message uses.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription is one observer's live feed. C yields events in publish
// order. Close unregisters the subscription; safe to call more than once.
type Subscription struct {
	C  <-chan Event
	id int
	b  *Broadcaster
}
