package app

import (
	"fmt"
	"strings"
	"time"

	"postbot/internal/adapters/twitter"
	"postbot/internal/config"
	"postbot/internal/observability/health"
	"postbot/internal/posting"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

const defaultMessagesPath = "tweet.txt"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTwitterConfig(cfg *config.Config) (twitter.Config, error) {
	timeout, err := config.Duration("twitter.timeout", cfg.Twitter.Timeout, twitter.DefaultTimeout)
	if err != nil {
		return twitter.Config{}, err
	}
	return twitter.Config{
		APIKey:       cfg.Twitter.APIKey,
		APISecret:    cfg.Twitter.APISecret,
		AccessToken:  cfg.Twitter.AccessToken,
		AccessSecret: cfg.Twitter.AccessSecret,
		BaseURL:      cfg.Twitter.BaseURL,
		Timeout:      timeout,
	}, nil
}

// mapPostingConfig also serves as the reload validator for schedule, window and timezone syntax.
func mapPostingConfig(cfg *config.Config) (posting.Config, error) {
	pc := cfg.Posting

	sched, err := posting.ParseSchedule(pc.Schedule)
	if err != nil {
		return posting.Config{}, fmt.Errorf("posting.schedule: %w", err)
	}
	window, err := posting.ParseWindow(pc.WindowStart, pc.WindowEnd)
	if err != nil {
		return posting.Config{}, fmt.Errorf("posting.window: %w", err)
	}
	loc := time.Local
	if tz := strings.TrimSpace(pc.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return posting.Config{}, fmt.Errorf("posting.timezone: invalid %q: %w", tz, err)
		}
	}
	retryBase, err := config.Duration("posting.retry_base", pc.RetryBase, posting.DefaultRetryBase)
	if err != nil {
		return posting.Config{}, err
	}

	// 0 in the file means "default"; -1 turns the budget off.
	budget := pc.MaxPostsPerDay
	switch {
	case budget == 0:
		budget = posting.DefaultMaxPostsPerDay
	case budget < 0:
		budget = 0
	}

	return posting.Config{
		Schedule:       sched,
		Window:         window,
		Location:       loc,
		RetryBase:      retryBase,
		MaxAttempts:    posting.DefaultMaxAttempts,
		MaxPostsPerDay: budget,
		PostOnStart:    pc.PostOnStartEnabled(),
		SkipRejected:   pc.SkipRejected,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		if path == "" {
			path = storage.DefaultPath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			path = "postbot.db"
		}
		busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapHTTPConfig(cfg *config.Config) (health.Config, error) {
	hc := cfg.HTTP
	read, err := config.Duration("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return health.Config{}, err
	}
	// pprof profiles run for 30s by default; leave room for them.
	write, err := config.Duration("http.write_timeout", hc.WriteTimeout, 40*time.Second)
	if err != nil {
		return health.Config{}, err
	}
	idle, err := config.Duration("http.idle_timeout", hc.IdleTimeout, 60*time.Second)
	if err != nil {
		return health.Config{}, err
	}
	addr := strings.TrimSpace(hc.Addr)
	if addr == "" {
		addr = health.DefaultAddr
	}
	return health.Config{
		Addr:         addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		PprofToken:   hc.PprofToken,
		PprofPrefix:  hc.PprofPrefix,
	}, nil
}

func messagesPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Posting.Messages); p != "" {
		return p
	}
	return defaultMessagesPath
}
