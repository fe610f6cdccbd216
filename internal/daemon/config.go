// Package daemon is the control plane of a running indexq service: a
// JSON-RPC 2.0 server on a Unix socket, its client, and the PID file that
// identifies the serving process. CLI commands use it to queue work, start
// rebuilds and read status without opening the index themselves.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default file names inside the data directory.
const (
	SocketName = "indexq.sock"
	PIDName    = "indexq.pid"
)

// Config holds configuration for the control plane.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath is the file path for storing the service's process ID.
	PIDPath string

	// Timeout bounds a single request unless the caller's context sets a
	// deadline. await_empty is bounded by the caller only.
	Timeout time.Duration
}

// DefaultConfig returns a Config with the socket and PID file in dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		SocketPath: filepath.Join(dataDir, SocketName),
		PIDPath:    filepath.Join(dataDir, PIDName),
		Timeout:    30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if pidDir := filepath.Dir(c.PIDPath); pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
