package posting

import (
	"context"
	"time"

	"postbot/internal/adapters/twitter"
)

const (
	DefaultRetryBase      = 10 * time.Second
	DefaultMaxAttempts    = 3
	DefaultMaxPostsPerDay = 17
)

// Poster delivers one message. *twitter.Client satisfies it.
type Poster interface {
	CreatePost(ctx context.Context, text string) (twitter.Post, error)
}

// Config controls the posting loop.
//
// The app layer maps config.posting into this struct. Zero values get defaults
// from normalize(); MaxPostsPerDay <= 0 disables the daily budget.
type Config struct {
	Schedule Schedule
	Window   Window
	Location *time.Location

	RetryBase   time.Duration
	MaxAttempts int

	MaxPostsPerDay int
	PostOnStart    bool

	// SkipRejected advances past messages the API rejects as invalid.
	SkipRejected bool
}

func (c Config) normalize() Config {
	if c.Schedule.sched == nil {
		c.Schedule, _ = ParseSchedule(DefaultSchedule)
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Outcome is the result of one tick.
type Outcome string

const (
	OutcomePosted        Outcome = "posted"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeOutsideWindow Outcome = "outside_window"
	OutcomeQuota         Outcome = "quota_exhausted"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeRejected      Outcome = "rejected"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeExhausted     Outcome = "retries_exhausted"
	OutcomeStoreError    Outcome = "store_error"
	OutcomeFatal         Outcome = "fatal"
	OutcomeCanceled      Outcome = "canceled"
)

// Advanced reports whether the tick moved the cursor forward.
func (o Outcome) Advanced() bool {
	return o == OutcomePosted || o == OutcomeDuplicate || o == OutcomeSkipped
}

// Metrics receives loop events. The zero-cost default discards them.
type Metrics interface {
	Tick(outcome Outcome)
	Attempt(result string)
	Cursor(v uint64)
	NextRun(t time.Time)
}

type nopMetrics struct{}

func (nopMetrics) Tick(Outcome)      {}
func (nopMetrics) Attempt(string)    {}
func (nopMetrics) Cursor(uint64)     {}
func (nopMetrics) NextRun(time.Time) {}

// Snapshot is the loop state exposed on /status.
type Snapshot struct {
	Schedule string `json:"schedule"`
	Window   string `json:"window,omitempty"`
	Timezone string `json:"timezone"`

	NextRun     time.Time `json:"next_run,omitzero"`
	LastRun     time.Time `json:"last_run,omitzero"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastPostID  string    `json:"last_post_id,omitempty"`
	LastPostAt  time.Time `json:"last_post_at,omitzero"`

	Cursor    uint64 `json:"cursor"`
	NextIndex int    `json:"next_index"`
	Messages  int    `json:"messages"`

	// DailyBudget is -1 when unlimited.
	DailyBudget     int `json:"daily_budget"`
	BudgetRemaining int `json:"budget_remaining"`

	Stopped bool `json:"stopped"`
}
