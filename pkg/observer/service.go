// Package observer is a client library for the bridge's websocket push
// channel: it keeps a connection alive across bridge restarts and hands
// every event to a callback.
package observer

import (
	"encoding/json"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/sirupsen/logrus"
)

// Manage websocket connection and call onEvent for each bridge event
func StartListener(host string, onEvent func(event *broadcast.Event)) {
	const (
		maxRetries     = 10
		baseRetryDelay = 2 * time.Second
		maxRetryDelay  = 60 * time.Second
	)

	// WebSocket server URL
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	// Channel to handle interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	retryCount := 0

	for {
		select {
		case <-interrupt:
			logrus.Info("Interrupt received, shutting down...")
			return
		default:
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}

			if retryCount > 0 {
				logrus.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
				select {
				case <-time.After(retryDelay):
				case <-interrupt:
					logrus.Info("Interrupt received during retry wait, shutting down...")
					return
				}
			}

			logrus.Infof("Connecting to %s", u.String())

			// Create a simple dialer with timeout
			dialer := websocket.DefaultDialer
			dialer.HandshakeTimeout = 10 * time.Second
			c, _, err := dialer.Dial(u.String(), nil)
			if err != nil {
				logrus.Warnf("Connection failed: %v", err)
				retryCount++
				if retryCount >= maxRetries {
					logrus.Errorf("Max retries (%d) reached. Giving up.", maxRetries)
					return
				}
				continue
			}

			logrus.Info("Connected! Receiving bridge events.")

			// Reset retry count on successful connection
			retryCount = 0

			// Handle the connection until it breaks or we're interrupted
			connectionBroken := handleConnection(c, interrupt, onEvent)

			c.Close()

			if !connectionBroken {
				// Clean shutdown requested
				return
			}

			logrus.Warn("Connection lost, will retry...")
		}
	}
}

func handleConnection(
	c *websocket.Conn,
	interrupt chan os.Signal,
	onEvent func(event *broadcast.Event),
) bool {
	done := make(chan struct{})

	// Goroutine to read messages
	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Warnf("WebSocket error: %v", err)
				} else {
					logrus.Infof("Connection closed: %v", err)
				}
				return
			}

			if messageType != websocket.TextMessage {
				continue
			}

			var event broadcast.Event
			if err := json.Unmarshal(message, &event); err != nil {
				logrus.Warnf("Failed to parse bridge event: %s", string(message))
				continue
			}
			onEvent(&event)
		}
	}()

	// Goroutine to send periodic pings to keep connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				ping, _ := json.Marshal(map[string]any{"type": "ping", "timestamp": time.Now().UnixMilli()})
				if err := c.WriteMessage(websocket.TextMessage, ping); err != nil {
					logrus.Warnf("Failed to send ping: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Wait for connection to break or interrupt signal
	select {
	case <-done:
		// Connection broke
		return true
	case <-interrupt:
		logrus.Info("Interrupt received, closing connection...")

		// Send close message
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			logrus.Warnf("Error sending close message: %v", err)
		}

		// Wait for close confirmation or timeout
		select {
		case <-done:
		case <-time.After(time.Second):
		}

		// Clean shutdown
		return false
	}
}
