package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.indexq/logs, or a temp-dir equivalent when the
// home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".indexq", "logs")
	}
	return filepath.Join(home, ".indexq", "logs")
}

// DefaultLogPath returns the service log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "indexq.log")
}
