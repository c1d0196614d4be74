package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration parses the Go duration at key. Empty or zero yields def; negative
// values are rejected.
func Duration(key, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", key, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %s", key, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}
