package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc mirrors os.LookupEnv so tests can inject an environment.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables on top of cfg.
// Env always wins over the config file so secrets never have to live on disk.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	s := envSetter{lookup: lookup}

	s.str("TWITTER_API_KEY", &cfg.Twitter.APIKey)
	s.str("TWITTER_API_SECRET", &cfg.Twitter.APISecret)
	s.str("TWITTER_ACCESS_TOKEN", &cfg.Twitter.AccessToken)
	s.str("TWITTER_ACCESS_SECRET", &cfg.Twitter.AccessSecret)
	s.str("TWITTER_API_BASE_URL", &cfg.Twitter.BaseURL)

	s.str("POSTBOT_MESSAGES", &cfg.Posting.Messages)
	s.str("POSTBOT_INTERVAL", &cfg.Posting.Schedule)
	s.str("POSTBOT_SCHEDULE", &cfg.Posting.Schedule)
	s.str("POSTBOT_TIMEZONE", &cfg.Posting.Timezone)
	s.str("POSTBOT_WINDOW_START", &cfg.Posting.WindowStart)
	s.str("POSTBOT_WINDOW_END", &cfg.Posting.WindowEnd)
	s.str("POSTBOT_RETRY_BASE", &cfg.Posting.RetryBase)
	s.integer("POSTBOT_MAX_POSTS_PER_DAY", &cfg.Posting.MaxPostsPerDay)
	s.boolean("POSTBOT_SKIP_REJECTED", &cfg.Posting.SkipRejected)
	if v, ok := s.get("POSTBOT_POST_ON_START"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.fail("POSTBOT_POST_ON_START", v, err)
		} else {
			cfg.Posting.PostOnStart = &b
		}
	}

	s.str("POSTBOT_STORAGE_DRIVER", &cfg.Storage.Driver)
	s.str("POSTBOT_CURSOR", &cfg.Storage.Path)

	// Hosting platforms hand out the port via PORT.
	if v, ok := s.get("PORT"); ok {
		if _, err := strconv.Atoi(v); err != nil {
			s.fail("PORT", v, err)
		} else {
			cfg.HTTP.Addr = ":" + v
		}
	}
	s.str("POSTBOT_HTTP_ADDR", &cfg.HTTP.Addr)
	s.str("POSTBOT_PPROF_TOKEN", &cfg.HTTP.PprofToken)

	s.str("LOG_LEVEL", &cfg.Logging.Level)
	s.str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	if v, ok := s.get("TELEGRAM_LOG_CHAT"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.fail("TELEGRAM_LOG_CHAT", v, err)
		} else {
			cfg.Telegram.ChatID = id
			cfg.Logging.Telegram.Enabled = true
		}
	}

	return errors.Join(s.errs...)
}

type envSetter struct {
	lookup LookupFunc
	errs   []error
}

func (s *envSetter) get(key string) (string, bool) {
	v, ok := s.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (s *envSetter) fail(key, raw string, err error) {
	s.errs = append(s.errs, fmt.Errorf("env %s=%q: %w", key, raw, err))
}

func (s *envSetter) str(key string, dst *string) {
	if v, ok := s.get(key); ok {
		*dst = v
	}
}

func (s *envSetter) integer(key string, dst *int) {
	v, ok := s.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.fail(key, v, err)
		return
	}
	*dst = n
}

func (s *envSetter) boolean(key string, dst *bool) {
	v, ok := s.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.fail(key, v, err)
		return
	}
	*dst = b
}
