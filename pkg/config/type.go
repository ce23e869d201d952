package config

type BridgeAPIConfig struct {
	// Hardware wrapper channel
	SerialDevice string `toml:"serial_device"`
	Baudrate     uint   `toml:"baudrate"`
	// Run against the built-in simulated wrapper instead of real hardware
	Simulate bool `toml:"simulate"`
	// Require `*XXXX` CRC16 suffixes on wire lines
	ChecksumEnabled bool `toml:"checksum_enabled"`

	// HTTP / websocket listener
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	// Bridge timing (milliseconds)
	PollIntervalMs    int     `toml:"poll_interval_ms"`
	CommandTimeoutMs  int     `toml:"command_timeout_ms"`
	BackoffInitialMs  int     `toml:"backoff_initial_ms"`
	BackoffMaxMs      int     `toml:"backoff_max_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`

	// Presentation
	// When false, PWM frequency readings are displayed as "disabled"
	// regardless of the raw value reported by the wrapper.
	ShowFrequency bool `toml:"show_frequency"`

	// Event log; empty disables history recording
	DatabasePath string `toml:"database_path"`
}

type BridgeMonitorConfig struct {
	BridgeAPIHost string `toml:"bridge_api_host"`
	TLSEnabled    bool   `toml:"tls_enabled"`
}
