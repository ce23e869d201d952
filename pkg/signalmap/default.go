package signalmap

import "os"

const defaultMapYAML = `# Signal map: logical DUT signals and their wrapper pin references.
signals:
  - name: POWER_ENABLE
    pin: D2
    direction: output
  - name: STATUS_LED
    pin: D3
    direction: input
  - name: RESET_LINE
    pin: D4
    direction: output
    no_poll: true
  - name: VBAT_SENSE
    pin: A0
    direction: analog
    scale: 0.00488
    unit: V
  - name: FAN_TACH
    pin: D9
    direction: pwm
`

// EnsureDefault writes a sample signal map when none exists yet, mirroring
// the config loader's create-default behavior.
func EnsureDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(defaultMapYAML), 0644)
}
