package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilworks/arduino_bridge/pkg/bridge"
	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/hilworks/arduino_bridge/pkg/wire"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// wsClient funnels every outbound event for one observer through a single
// writer goroutine; gorilla connections allow only one concurrent writer.
type wsClient struct {
	conn *websocket.Conn
	send chan broadcast.Event
	done chan struct{}
	once sync.Once
}

func (c *wsClient) trySend(event broadcast.Event) {
	select {
	case c.send <- event:
	case <-c.done:
	default:
		// Slow consumer; deltas are superseded by later state anyway.
	}
}

func (c *wsClient) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) writePump() {
	defer c.shutdown()
	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleWS upgrades the connection, delivers the join snapshot, then relays
// broadcast events out and observer requests in until either side closes.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logrus.Warnf("WebSocket upgrade error: %v", err)
		return nil
	}

	client := &wsClient{
		conn: conn,
		send: make(chan broadcast.Event, 64),
		done: make(chan struct{}),
	}

	// Snapshot is computed under the broadcaster lock, so the joiner sees
	// exactly the state already pushed to everyone else.
	snapshot, sub := s.bus.Subscribe(func() any { return s.engine.Snapshot() })
	defer sub.Close()
	defer client.shutdown()

	go client.writePump()
	client.trySend(snapshot)
	go func() {
		for event := range sub.C {
			client.trySend(event)
		}
	}()

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Debugf("Observer connection error: %v", err)
			}
			return nil
		}
		s.handleClientMessage(client, msg)
	}
}

func (s *Server) handleClientMessage(client *wsClient, msg ClientMessage) {
	switch msg.Type {
	case MsgTypePing:
		client.trySend(broadcast.NewEvent(broadcast.TypePong, PongData{Timestamp: msg.Timestamp}))

	case MsgTypeGetPinStates:
		client.trySend(broadcast.NewEvent(broadcast.TypeInitialState, s.engine.Snapshot()))

	case MsgTypeHardwareCommand:
		go s.dispatchCommand(client, msg)

	default:
		client.trySend(broadcast.NewEvent(broadcast.TypeError, bridge.ErrorData{
			Error: "unknown message type: " + msg.Type,
		}))
	}
}

// dispatchCommand runs one observer command through the engine and answers
// on the issuing connection. The engine separately broadcasts the
// arduino_command_sent / arduino_command_response pair to every observer.
func (s *Server) dispatchCommand(client *wsClient, msg ClientMessage) {
	cmdType, err := wire.ParseCommandType(msg.Command)
	if err != nil {
		client.trySend(broadcast.NewEvent(broadcast.TypeError, bridge.ErrorData{Error: err.Error()}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.commandTimeout+time.Second)
	defer cancel()

	resp, latency, err := s.engine.Send(ctx, bridge.Request{
		Command: cmdType,
		Signal:  msg.Pin,
		Value:   msg.Value,
	})
	if err != nil {
		client.trySend(broadcast.NewEvent(broadcast.TypeError, bridge.ErrorData{Error: err.Error()}))
		return
	}

	client.trySend(broadcast.NewEvent("command_response", bridge.CommandResponseData{
		Command:   msg.Command,
		Pin:       msg.Pin,
		Response:  resp.Raw,
		LatencyMs: float64(latency.Microseconds()) / 1000.0,
		OK:        true,
	}))
}
