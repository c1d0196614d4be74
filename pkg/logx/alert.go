package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers a plain text alert to a chat.
// Implemented by internal/adapters/telegram.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

const (
	alertQueueSize = 64
	alertMaxLen    = 3500
	alertFieldLen  = 600
	alertTimeout   = 10 * time.Second
)

// alertSink is a zerolog.LevelWriter that forwards records to a Sender from
// a single background worker. Writes never block; overflow is dropped.
type alertSink struct {
	sender Sender
	queue  chan string

	mu       sync.Mutex
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newAlertSink(sender Sender) *alertSink {
	return &alertSink{sender: sender, queue: make(chan string, alertQueueSize), done: make(chan struct{})}
}

func (a *alertSink) configure(cfg TelegramConfig) {
	burst := max(1, cfg.RatePerSec)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatID, a.threadID = cfg.ChatID, cfg.ThreadID
	a.minLevel = parseLevel(cfg.MinLevel, LevelWarn)
	a.limiter = rate.NewLimiter(rate.Limit(burst), burst)
	if cfg.Enabled && cfg.ChatID == 0 {
		fmt.Fprintln(os.Stderr, "logx: telegram alerts enabled without a chat id")
	}
}

func (a *alertSink) start() {
	a.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		a.mu.Lock()
		a.cancel = cancel
		a.mu.Unlock()
		go a.run(ctx)
	})
}

func (a *alertSink) stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-a.done
	}
}

func (a *alertSink) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.queue:
			a.mu.Lock()
			chat, thread := a.chatID, a.threadID
			a.mu.Unlock()
			if chat == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertTimeout)
			if err := a.sender.SendText(sctx, chat, thread, text); err != nil {
				fmt.Fprintf(os.Stderr, "logx: telegram alert failed: %v\n", err)
			}
			cancel()
		}
	}
}

func (a *alertSink) Write(p []byte) (int, error) { return a.WriteLevel(zerolog.NoLevel, p) }

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	ok := level != zerolog.NoLevel && level >= a.minLevel && a.limiter.Allow()
	a.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if text := formatAlert(p); text != "" {
		select {
		case a.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// formatAlert turns one JSON record into "[LEVEL] message" followed by
// "- key=value" lines in key order. Non-JSON input is passed through.
func formatAlert(p []byte) string {
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(strings.TrimSpace(string(p)), alertMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	delete(rec, zerolog.LevelFieldName)
	delete(rec, zerolog.MessageFieldName)
	delete(rec, zerolog.TimestampFieldName)
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), alertFieldLen))
	}
	return clip(b.String(), alertMaxLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
