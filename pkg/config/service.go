package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hilworks/arduino_bridge/pkg/pathing"
)

var (
	ActiveBridgeAPIConfig     *BridgeAPIConfig
	ActiveBridgeMonitorConfig *BridgeMonitorConfig
)

func DefaultBridgeAPIConfig() *BridgeAPIConfig {
	return &BridgeAPIConfig{
		SerialDevice:      "/dev/ttyACM0",
		Baudrate:          115200,
		Simulate:          false,
		ChecksumEnabled:   false,
		ListenAddress:     "0.0.0.0",
		ListenPort:        9047,
		PollIntervalMs:    1000,
		CommandTimeoutMs:  2000,
		BackoffInitialMs:  500,
		BackoffMaxMs:      30000,
		BackoffMultiplier: 2.0,
		ShowFrequency:     true,
		DatabasePath:      pathing.GetHistoryDbPath(),
	}
}

func LoadBridgeAPIConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "bridge_api.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultBridgeAPIConfig()
		// Create file
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveBridgeAPIConfig = cfg
		return nil
	}

	// Load existing config
	var config BridgeAPIConfig
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return err
	}
	ActiveBridgeAPIConfig = &config
	return nil
}

func LoadBridgeMonitorConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "bridge_monitor.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &BridgeMonitorConfig{
			BridgeAPIHost: "localhost:9047",
			TLSEnabled:    false,
		}
		// Create file
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		toml.NewEncoder(cfgFile).Encode(cfg)
		ActiveBridgeMonitorConfig = cfg
		return nil
	}

	// Load existing config
	var config BridgeMonitorConfig
	_, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return err
	}
	ActiveBridgeMonitorConfig = &config
	return nil
}
