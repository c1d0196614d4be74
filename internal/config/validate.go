package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	logx "postbot/pkg/logx"
)

// Validate checks settings that do not depend on other packages.
// Schedule and window syntax is validated by the app when it maps the posting config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if !cfg.Twitter.HasCredentials() {
		missing := make([]string, 0, 4)
		for name, v := range map[string]string{
			"TWITTER_API_KEY":       cfg.Twitter.APIKey,
			"TWITTER_API_SECRET":    cfg.Twitter.APISecret,
			"TWITTER_ACCESS_TOKEN":  cfg.Twitter.AccessToken,
			"TWITTER_ACCESS_SECRET": cfg.Twitter.AccessSecret,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	var errs []error
	for path, raw := range map[string]string{
		"twitter.timeout":      cfg.Twitter.Timeout,
		"posting.retry_base":   cfg.Posting.RetryBase,
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
		"http.read_timeout":    cfg.HTTP.ReadTimeout,
		"http.write_timeout":   cfg.HTTP.WriteTimeout,
		"http.idle_timeout":    cfg.HTTP.IdleTimeout,
	} {
		if _, err := Duration(path, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Posting.MaxPostsPerDay < -1 {
		errs = append(errs, errors.New("posting.max_posts_per_day must be >= -1"))
	}
	if tz := strings.TrimSpace(cfg.Posting.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("posting.timezone: invalid %q: %w", tz, err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver))
	}
	if _, err := logx.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.token (TELEGRAM_BOT_TOKEN)"))
	}
	return errors.Join(errs...)
}
