package config

import (
	"strings"

	logx "postbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe structured
// attrs for logging. Secrets (API credentials, tokens) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Twitter != newCfg.Twitter {
		changed = append(changed, "twitter")
		attrs = append(attrs, logx.Bool("twitter.credentials_changed",
			oldCfg.Twitter.APIKey != newCfg.Twitter.APIKey ||
				oldCfg.Twitter.APISecret != newCfg.Twitter.APISecret ||
				oldCfg.Twitter.AccessToken != newCfg.Twitter.AccessToken ||
				oldCfg.Twitter.AccessSecret != newCfg.Twitter.AccessSecret))
	}

	op, np := oldCfg.Posting, newCfg.Posting
	if op.Messages != np.Messages || op.Schedule != np.Schedule || op.Timezone != np.Timezone ||
		op.WindowStart != np.WindowStart || op.WindowEnd != np.WindowEnd || op.RetryBase != np.RetryBase ||
		op.MaxPostsPerDay != np.MaxPostsPerDay || op.PostOnStartEnabled() != np.PostOnStartEnabled() ||
		op.SkipRejected != np.SkipRejected {
		changed = append(changed, "posting")
		attrs = append(attrs,
			logx.String("posting.schedule", strings.TrimSpace(np.Schedule)),
			logx.String("posting.window", strings.TrimSpace(np.WindowStart)+"-"+strings.TrimSpace(np.WindowEnd)),
			logx.String("posting.timezone", strings.TrimSpace(np.Timezone)),
			logx.Int("posting.max_posts_per_day", np.MaxPostsPerDay),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}

	if oldCfg.HTTP.Addr != newCfg.HTTP.Addr || oldCfg.HTTP.ReadTimeout != newCfg.HTTP.ReadTimeout ||
		oldCfg.HTTP.WriteTimeout != newCfg.HTTP.WriteTimeout || oldCfg.HTTP.IdleTimeout != newCfg.HTTP.IdleTimeout ||
		oldCfg.HTTP.PprofToken != newCfg.HTTP.PprofToken || oldCfg.HTTP.PprofPrefix != newCfg.HTTP.PprofPrefix {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.pprof_enabled", newCfg.HTTP.PprofToken != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging || oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
	}
	return changed, attrs
}

// RequiresRestart reports sections whose changes only take effect on restart.
func RequiresRestart(section string) bool {
	switch section {
	case "twitter", "storage", "http", "telegram":
		return true
	default:
		return false
	}
}
