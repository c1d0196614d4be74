// Package posting runs the timer-driven loop that posts one message per tick
// and advances the durable round-robin cursor.
package posting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postbot/internal/adapters/twitter"
	"postbot/internal/messages"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// ErrStopped is returned by Run after a fatal failure stopped the loop.
var ErrStopped = errors.New("posting loop stopped")

type Option func(*Service)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSleeper overrides the backoff sleep (tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

type Service struct {
	log     logx.Logger
	poster  Poster
	store   storage.Store
	msgs    messages.List
	metrics Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// wake re-arms the timer after Apply.
	wake chan struct{}

	mu     sync.Mutex
	cfg    Config
	budget *rate.Limiter
	snap   Snapshot
}

func New(cfg Config, poster Poster, store storage.Store, msgs messages.List, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log,
		poster:  poster,
		store:   store,
		msgs:    msgs,
		metrics: nopMetrics{},
		now:     time.Now,
		sleep:   sleepCtx,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Messages = msgs.Len()
	s.applyLocked(cfg.normalize())
	return s
}

// Apply swaps the loop config. The running loop re-arms its timer right away.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg.normalize())
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) applyLocked(cfg Config) {
	if s.budget == nil || cfg.MaxPostsPerDay != s.cfg.MaxPostsPerDay {
		s.budget = resizeBudget(s.budget, cfg.MaxPostsPerDay, s.now())
	}
	s.cfg = cfg
	s.snap.Schedule = cfg.Schedule.String()
	s.snap.Window = cfg.Window.String()
	s.snap.Timezone = cfg.Location.String()
	s.snap.DailyBudget = -1
	if cfg.MaxPostsPerDay > 0 {
		s.snap.DailyBudget = cfg.MaxPostsPerDay
	}
}

// newBudget refills n posts evenly over 24h with a burst of n.
func newBudget(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(n)), n)
}

// resizeBudget replaces old with an n-per-day limiter that still counts the
// posts old has not refilled yet, capped at n.
func resizeBudget(old *rate.Limiter, n int, now time.Time) *rate.Limiter {
	lim := newBudget(n)
	if lim == nil || old == nil {
		return lim
	}
	if spent := int(math.Ceil(float64(old.Burst()) - old.TokensAt(now))); spent > 0 {
		lim.ReserveN(now, min(spent, n))
	}
	return lim
}

func (s *Service) config() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.budget
}

// Snapshot returns a copy of the loop state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.BudgetRemaining = -1
	if s.budget != nil {
		snap.BudgetRemaining = int(math.Floor(s.budget.TokensAt(s.now())))
	}
	return snap
}

// Run posts on start (if enabled) and then on every schedule tick until ctx is
// done or a fatal failure occurs. Ticks never overlap: the next run is computed
// after the previous tick returns.
func (s *Service) Run(ctx context.Context) error {
	cfg, _ := s.config()
	s.log.Info("posting loop started",
		logx.String("schedule", cfg.Schedule.String()),
		logx.String("window", cfg.Window.String()),
		logx.String("tz", cfg.Location.String()),
		logx.Int("messages", s.msgs.Len()),
	)
	defer s.log.Info("posting loop stopped")

	if cfg.PostOnStart {
		if _, err := s.Tick(ctx); err != nil {
			return s.stop(ctx, err)
		}
	}

	for {
		cfg, _ = s.config()
		now := s.now()
		next := cfg.Schedule.Next(now.In(cfg.Location))
		s.setNextRun(next)
		s.log.Debug("next run scheduled", logx.Time("at", next), logx.Duration("in", next.Sub(now)))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if _, err := s.Tick(ctx); err != nil {
			return s.stop(ctx, err)
		}
	}
}

func (s *Service) stop(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	s.mu.Lock()
	s.snap.Stopped = true
	s.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrStopped, err)
}

// Tick runs one iteration: window gate, budget gate, select, deliver, advance.
//
// The returned error is non-nil only for conditions that must stop the loop
// (auth failures, an empty message list, cancellation). Everything else is
// reported through the Outcome and retried on the next tick.
func (s *Service) Tick(ctx context.Context) (Outcome, error) {
	out, err := s.tick(ctx)
	s.metrics.Tick(out)
	s.mu.Lock()
	s.snap.LastRun = s.now()
	s.snap.LastOutcome = out
	if err != nil {
		s.snap.LastError = err.Error()
	}
	s.mu.Unlock()
	return out, err
}

func (s *Service) tick(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeCanceled, err
	}
	cfg, budget := s.config()
	now := s.now().In(cfg.Location)

	if !cfg.Window.Contains(now) {
		s.log.Info("outside posting window; skipping tick",
			logx.String("window", cfg.Window.String()),
			logx.String("local_time", now.Format("15:04")),
		)
		return OutcomeOutsideWindow, nil
	}
	if budget != nil && budget.TokensAt(now) < 1 {
		s.log.Warn("daily post budget exhausted; skipping tick", logx.Int("max_posts_per_day", cfg.MaxPostsPerDay))
		return OutcomeQuota, nil
	}

	cursor, err := s.store.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled, ctx.Err()
		}
		s.log.Error("read cursor failed; skipping tick", logx.Err(err))
		s.setError(err)
		return OutcomeStoreError, nil
	}
	idx, text, err := messages.Select(cursor, s.msgs)
	if err != nil {
		return OutcomeFatal, err
	}
	log := s.log.With(logx.Uint64("cursor", cursor), logx.Int("index", idx))

	for attempt := 1; ; attempt++ {
		post, err := s.poster.CreatePost(ctx, text)
		switch {
		case err == nil:
			s.metrics.Attempt("success")
			if budget != nil {
				budget.AllowN(now, 1)
			}
			log.Info("posted", logx.String("id", post.ID), logx.Int("attempt", attempt))
			s.recordPost(post.ID)
			s.advance(ctx, log, cursor)
			return OutcomePosted, nil

		case ctx.Err() != nil:
			return OutcomeCanceled, ctx.Err()

		case errors.Is(err, twitter.ErrDuplicate):
			s.metrics.Attempt("duplicate")
			log.Warn("duplicate content; treating as posted", logx.Err(err))
			s.advance(ctx, log, cursor)
			return OutcomeDuplicate, nil

		case errors.Is(err, twitter.ErrRateLimited):
			s.metrics.Attempt("rate_limited")
			fields := []logx.Field{logx.Err(err)}
			var apiErr *twitter.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				fields = append(fields, logx.Duration("retry_after", apiErr.RetryAfter))
			}
			log.Warn("rate limited; deferring to next tick", fields...)
			s.setError(err)
			return OutcomeRateLimited, nil

		case twitter.IsAuth(err):
			s.metrics.Attempt("auth")
			log.Error("posting API refused credentials; stopping", logx.Err(err))
			for i, step := range twitter.Remediation(err) {
				log.Error("remediation", logx.Int("step", i+1), logx.String("do", step))
			}
			return OutcomeFatal, err

		case errors.Is(err, twitter.ErrBadRequest):
			s.metrics.Attempt("rejected")
			s.setError(err)
			if cfg.SkipRejected {
				log.Warn("message rejected; skipping it", logx.Err(err))
				s.advance(ctx, log, cursor)
				return OutcomeSkipped, nil
			}
			log.Error("message rejected; will retry next tick", logx.Err(err))
			return OutcomeRejected, nil
		}

		s.metrics.Attempt("transient")
		s.setError(err)
		if attempt >= cfg.MaxAttempts {
			log.Error("delivery failed; retries exhausted", logx.Int("attempts", attempt), logx.Err(err))
			return OutcomeExhausted, nil
		}
		wait := time.Duration(attempt) * cfg.RetryBase
		log.Warn("delivery failed; retrying", logx.Int("attempt", attempt), logx.Duration("backoff", wait), logx.Err(err))
		if err := s.sleep(ctx, wait); err != nil {
			return OutcomeCanceled, err
		}
	}
}

// advance persists cursor+1. A write failure is logged only; the next tick
// re-reads the old value and repeats the message.
func (s *Service) advance(ctx context.Context, log logx.Logger, cursor uint64) {
	next := cursor + 1
	if err := s.store.Set(context.WithoutCancel(ctx), next); err != nil {
		log.Error("persist cursor failed; message may repeat", logx.Err(err))
		s.setError(err)
		return
	}
	s.metrics.Cursor(next)
	s.mu.Lock()
	s.snap.Cursor = next
	if n := s.msgs.Len(); n > 0 {
		s.snap.NextIndex = int(next % uint64(n))
	}
	s.mu.Unlock()
}

func (s *Service) recordPost(id string) {
	s.mu.Lock()
	s.snap.LastPostID = id
	s.snap.LastPostAt = s.now()
	s.snap.LastError = ""
	s.mu.Unlock()
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.snap.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) setNextRun(t time.Time) {
	s.metrics.NextRun(t)
	s.mu.Lock()
	s.snap.NextRun = t
	s.mu.Unlock()
}

// SyncCursor loads the persisted cursor into the status snapshot.
func (s *Service) SyncCursor(ctx context.Context) error {
	v, err := s.store.Get(ctx)
	if err != nil {
		return err
	}
	s.metrics.Cursor(v)
	s.mu.Lock()
	s.snap.Cursor = v
	if n := s.msgs.Len(); n > 0 {
		s.snap.NextIndex = int(v % uint64(n))
	}
	s.mu.Unlock()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
