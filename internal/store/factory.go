package store

import (
	"fmt"
	"path/filepath"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
)

const (
	// SQLiteFileName is the index database inside the data dir.
	SQLiteFileName = "index.db"

	// BleveDirName is the bleve index directory inside the data dir.
	BleveDirName = "index.bleve"

	// StateDirName is the pebble state store directory inside the data dir.
	StateDirName = "state"
)

// NewEngine opens the engine for backend under dataDir. An empty backend
// selects SQLite. An empty dataDir creates an in-memory engine for testing.
func NewEngine(dataDir string, backend Backend) (Engine, error) {
	path := func(name string) string {
		if dataDir == "" {
			return ""
		}
		return filepath.Join(dataDir, name)
	}

	switch backend {
	case BackendSQLite, "":
		return NewSQLiteEngine(path(SQLiteFileName))
	case BackendBleve:
		return NewBleveEngine(path(BleveDirName))
	default:
		return nil, ixerrors.ConfigError(fmt.Sprintf("unknown index backend %q", backend), nil).
			WithSuggestion("Use 'sqlite' or 'bleve' for index.backend")
	}
}

// OpenState opens the state store under dataDir.
func OpenState(dataDir string) (*StateStore, error) {
	return OpenStateStore(filepath.Join(dataDir, StateDirName))
}
