package storage

import (
	"errors"
	"strings"

	logx "postbot/pkg/logx"
)

// DefaultPath is used by the file driver when no path is configured.
const DefaultPath = "last_index.txt"

// Open initializes the configured cursor store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
