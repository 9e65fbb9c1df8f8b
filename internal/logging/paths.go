package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.thutuc/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".thutuc", "logs")
	}
	return filepath.Join(home, ".thutuc", "logs")
}

// DefaultLogPath returns the default service log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "thutuc.log")
}
