// Bridge API owns the channel to the Arduino HIL wrapper and broadcasts
// hardware state to observers.
package main

import (
	"fmt"
	"time"

	"github.com/hilworks/arduino_bridge/pkg/bridge"
	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/hilworks/arduino_bridge/pkg/config"
	"github.com/hilworks/arduino_bridge/pkg/historydb"
	"github.com/hilworks/arduino_bridge/pkg/pathing"
	"github.com/hilworks/arduino_bridge/pkg/server"
	"github.com/hilworks/arduino_bridge/pkg/signalmap"
	"github.com/hilworks/arduino_bridge/pkg/transport"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	if err := config.LoadBridgeAPIConfig(); err != nil {
		logrus.Fatalf("Failed to load bridge API config: %v", err)
	}
	cfg := config.ActiveBridgeAPIConfig

	// Load signal map
	mapPath := pathing.GetSignalMapPath()
	if err := signalmap.EnsureDefault(mapPath); err != nil {
		logrus.Fatalf("Failed to create default signal map: %v", err)
	}
	signals, err := signalmap.Load(mapPath)
	if err != nil {
		logrus.Fatalf("Failed to load signal map: %v", err)
	}
	logrus.Infof("Loaded %d signals from %s", len(signals.Signals), mapPath)

	// Pick the transport
	var t transport.Transport
	checksum := cfg.ChecksumEnabled
	if cfg.Simulate {
		if checksum {
			logrus.Warn("Simulated wrapper does not speak checksums; disabling them")
			checksum = false
		}
		t = transport.NewSimWrapper()
	} else {
		t = transport.NewSerialTransport(cfg.SerialDevice, cfg.Baudrate)
	}

	bus := broadcast.NewBroadcaster()

	// Session callbacks target the engine; the engine writes back through
	// the session.
	var engine *bridge.Engine
	session := transport.NewSession(t, transport.SessionConfig{
		HandshakeTimeout:  time.Duration(cfg.CommandTimeoutMs) * time.Millisecond,
		BackoffInitial:    time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
		BackoffMultiplier: cfg.BackoffMultiplier,
		Checksum:          checksum,
	},
		func(line string) { engine.HandleLine(line) },
		func(st transport.State, desc string) { engine.HandleSessionState(st, desc) },
	)

	engine = bridge.NewEngine(signals, bus, session, bridge.Config{
		PollInterval:   time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		CommandTimeout: time.Duration(cfg.CommandTimeoutMs) * time.Millisecond,
		Checksum:       checksum,
		ShowFrequency:  cfg.ShowFrequency,
	}, nil)

	// Event log
	historyEnabled := cfg.DatabasePath != ""
	if historyEnabled {
		historydb.InitializeDatabase(cfg.DatabasePath)
		stopRecorder := historydb.StartRecorder(bus)
		defer stopRecorder()
	}

	engine.Start()
	go session.Run()

	srv := server.NewServer(engine, bus, time.Duration(cfg.CommandTimeoutMs)*time.Millisecond, historyEnabled)
	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	logrus.Infof("Starting Arduino HIL Bridge API on %s", listener)
	logrus.Fatal(srv.Start(listener))
}
