package config

import "errors"

// ErrMissingCredentials is returned by Validate when any of the four posting API
// credentials is empty. It is fatal at startup.
var ErrMissingCredentials = errors.New("missing posting API credentials")

type Config struct {
	Twitter  TwitterConfig  `json:"twitter"`
	Posting  PostingConfig  `json:"posting"`
	Storage  StorageConfig  `json:"storage"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

// TwitterConfig holds the OAuth 1.0a user-context credentials.
// Secrets are normally supplied through the environment (TWITTER_*), not the file.
type TwitterConfig struct {
	APIKey       string `json:"api_key,omitempty"`
	APISecret    string `json:"api_secret,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	AccessSecret string `json:"access_secret,omitempty"`

	// BaseURL defaults to "https://api.twitter.com".
	BaseURL string `json:"base_url,omitempty"`
	// Timeout is a Go duration string (default "15s").
	Timeout string `json:"timeout,omitempty"`
}

// PostingConfig controls the posting loop.
//
// Defaults (when fields are omitted/zero):
//   - messages: "tweet.txt"
//   - schedule: "3h"
//   - window_start/window_end: unset (post at any hour)
//   - retry_base: "10s"
//   - max_posts_per_day: 17 (0 in the file means default; use -1 to disable)
//   - post_on_start: true
type PostingConfig struct {
	Messages string `json:"messages,omitempty"`

	// Schedule is a cron expression ("0 */3 * * *"), a duration ("3h") or HH:MM ("03:00").
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// WindowStart/WindowEnd bound the time of day posting is allowed ("9", "09:00").
	// The window is half-open [start, end) and may wrap midnight.
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`

	RetryBase      string `json:"retry_base,omitempty"`
	MaxPostsPerDay int    `json:"max_posts_per_day,omitempty"`
	PostOnStart    *bool  `json:"post_on_start,omitempty"`
	SkipRejected   bool   `json:"skip_rejected,omitempty"`
}

// StorageConfig selects the cursor backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/postbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) | "sqlite"
	Path        string `json:"path,omitempty"`   // default: "last_index.txt"
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig controls the liveness server.
//
// Security note: the server binds publicly by default because hosting platforms
// probe it from outside. pprof is only mounted when a token is set.
type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"` // default ":8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	PprofToken  string `json:"pprof_token,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the operator alert channel used by the Telegram log sink.
type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// PostOnStartEnabled resolves the tri-state flag (default true).
func (p PostingConfig) PostOnStartEnabled() bool {
	if p.PostOnStart == nil {
		return true
	}
	return *p.PostOnStart
}

// HasCredentials reports whether all four credentials are present.
func (t TwitterConfig) HasCredentials() bool {
	return t.APIKey != "" && t.APISecret != "" && t.AccessToken != "" && t.AccessSecret != ""
}
