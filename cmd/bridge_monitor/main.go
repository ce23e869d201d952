// Bridge monitor tails the bridge API's event stream to stdout.
// Depends on the bridge API being online.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/hilworks/arduino_bridge/pkg/config"
	"github.com/hilworks/arduino_bridge/pkg/observer"
	"github.com/sirupsen/logrus"
)

func main() {
	// Set the host:port from env var BRIDGE_API_HOST, falling back to config
	host := os.Getenv("BRIDGE_API_HOST")
	if host == "" {
		if err := config.LoadBridgeMonitorConfig(); err != nil {
			logrus.Fatalf("Failed to load bridge monitor config: %v", err)
		}
		host = config.ActiveBridgeMonitorConfig.BridgeAPIHost
	}

	// Subscribe to websocket with revive
	observer.StartListener(host, handleEvent)
}

// Print each bridge event as one JSON line
func handleEvent(event *broadcast.Event) {
	line, err := json.Marshal(event)
	if err != nil {
		logrus.Warnf("Failed to marshal event: %v", err)
		return
	}
	fmt.Println(string(line))
}
