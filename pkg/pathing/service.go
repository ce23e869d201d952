package pathing

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Ensure directories exist on startup
func init() {
	// Directories that must exist:
	dirs := []string{
		GetDataDir(),
	}

	// Create all directories
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			err := os.MkdirAll(dir, 0755)
			if err != nil {
				logrus.Fatal(err)
			}
		}
	}
}

func GetHistoryDbPath() string {
	// Join path
	return filepath.Join(GetDataDir(), "bridge-history.db")
}

func GetSignalMapPath() string {
	return filepath.Join(GetConfigDir(), "signals.yaml")
}

func GetDataDir() string {
	if dir := os.Getenv("BRIDGE_DATA_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/arduino_bridge"
}

func GetConfigDir() string {
	if dir := os.Getenv("BRIDGE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/arduino_bridge"
}
