// Package app wires the posting bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"postbot/internal/adapters/telegram"
	"postbot/internal/adapters/twitter"
	"postbot/internal/config"
	"postbot/internal/messages"
	"postbot/internal/observability/health"
	"postbot/internal/observability/metrics"
	"postbot/internal/posting"
	"postbot/internal/runtime/supervisor"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
	"postbot/pkg/systemd"
)

type Options struct {
	// ConfigPath is optional; without it the config comes from the environment.
	ConfigPath string
	// Lookup replaces os.LookupEnv (tests).
	Lookup config.LookupFunc
	// HTTPClient is the base client for posting API calls (tests).
	HTTPClient *http.Client
}

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	msgs    messages.List
	client  *twitter.Client
	account twitter.User

	posting *posting.Service
	metrics *metrics.Collector
	health  *health.Server

	sup       *supervisor.Supervisor
	startedAt time.Time
}

// New loads config, verifies credentials and builds every component.
// Missing messages, missing credentials and rejected credentials are fatal here.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	if opts.Lookup != nil {
		cfgm.SetLookup(opts.Lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var sender logx.Sender
	if cfg.Telegram.Token != "" {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}
	logSvc, log := logx.New(mapLoggingConfig(cfg), sender)

	a, err := build(ctx, cfgm, cfg, logSvc, log, opts)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfgm *config.ConfigManager, cfg *config.Config, logSvc *logx.Service, log logx.Logger, opts Options) (*App, error) {
	a := &App{cfgm: cfgm, logs: logSvc, log: log.With(logx.String("comp", "app"))}

	pcfg, err := mapPostingConfig(cfg)
	if err != nil {
		return nil, err
	}
	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	tcfg, err := mapTwitterConfig(cfg)
	if err != nil {
		return nil, err
	}
	tcfg.HTTPClient = opts.HTTPClient

	path := messagesPath(cfg)
	if a.msgs, err = messages.Load(path); err != nil {
		return nil, err
	}
	for _, i := range a.msgs.Overlong() {
		a.log.Warn("message exceeds length limit; the API will likely reject it",
			logx.Int("line", i+1), logx.Int("limit", messages.MaxLength))
	}
	a.log.Info("messages loaded", logx.String("path", path), logx.Int("count", a.msgs.Len()))

	if a.client, err = twitter.New(tcfg, log.With(logx.String("comp", "twitter"))); err != nil {
		return nil, err
	}
	if err := a.verify(ctx); err != nil {
		return nil, err
	}

	if a.store, err = storage.Open(scfg, log.With(logx.String("comp", "storage"))); err != nil {
		return nil, err
	}
	a.log.Info("cursor store opened", logx.String("driver", scfg.Driver), logx.String("path", scfg.Path))

	a.metrics = metrics.New()
	a.metrics.Messages(a.msgs.Len())
	a.posting = posting.New(pcfg, a.client, a.store, a.msgs,
		log.With(logx.String("comp", "posting")), posting.WithMetrics(a.metrics))
	if err := a.posting.SyncCursor(ctx); err != nil {
		a.log.Warn("initial cursor read failed", logx.Err(err))
	}

	a.health = health.New(hcfg, a.status, a.metrics.Handler(), log.With(logx.String("comp", "http")))
	return a, nil
}

// verify checks the credentials against the API. Auth failures are fatal;
// anything else is logged and left for the posting loop to retry.
func (a *App) verify(ctx context.Context) error {
	vctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	user, err := a.client.Me(vctx)
	switch {
	case err == nil:
		a.account = user
		a.log.Info("authenticated", logx.String("username", "@"+user.Username), logx.String("id", user.ID))
		return nil
	case twitter.IsAuth(err):
		for i, step := range twitter.Remediation(err) {
			a.log.Error("remediation", logx.Int("step", i+1), logx.String("do", step))
		}
		return err
	case errors.Is(err, twitter.ErrRateLimited):
		a.log.Warn("credential check rate limited; continuing", logx.Err(err))
		return nil
	default:
		a.log.Warn("credential check failed; continuing", logx.Err(err))
		return nil
	}
}

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapPostingConfig(cfg); err != nil {
			return err
		}
		_, err := mapHTTPConfig(cfg)
		return err
	})

	a.sup.Go("posting.loop", a.posting.Run)
	a.sup.GoRestart("http.serve", a.health.Serve,
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithPublishFirstError(false),
	)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, a.log.With(logx.String("comp", "systemd")))
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd ready notify failed", logx.Err(err))
	}
	snap := a.posting.Snapshot()
	_, _ = systemd.Status(fmt.Sprintf("posting every %s, cursor %d", snap.Schedule, snap.Cursor))
	a.log.Info("app started")
	return nil
}

// RunOnce performs a single tick. Ticks that neither post nor fall outside
// the window are reported as errors.
func (a *App) RunOnce(ctx context.Context) error {
	out, err := a.posting.Tick(ctx)
	if err != nil {
		return err
	}
	if out.Advanced() || out == posting.OutcomeOutsideWindow {
		a.log.Info("single tick finished", logx.String("outcome", string(out)))
		return nil
	}
	return fmt.Errorf("tick finished without posting: %s", out)
}

// Stop cancels all goroutines and releases resources. It returns the first
// fatal error, if the app stopped because of one.
func (a *App) Stop(ctx context.Context) error {
	_, _ = systemd.Stopping()

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("shutdown timed out waiting for goroutines")
		}
	}
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			a.log.Warn("close store failed", logx.Err(cerr))
		}
	}
	a.log.Info("app stopped")
	_ = a.logs.Close()
	return err
}

// Status is the /status body.
type Status struct {
	Status    string              `json:"status"`
	Account   string              `json:"account,omitempty"`
	StartedAt time.Time           `json:"started_at,omitzero"`
	Uptime    string              `json:"uptime"`
	Posting   posting.Snapshot    `json:"posting"`
	Runtime   supervisor.Counters `json:"runtime"`
}

func (a *App) status() any {
	st := Status{
		Status:    "running",
		StartedAt: a.startedAt,
		Uptime:    time.Since(a.startedAt).Truncate(time.Second).String(),
		Posting:   a.posting.Snapshot(),
	}
	if a.account.Username != "" {
		st.Account = "@" + a.account.Username
	}
	if a.sup != nil {
		st.Runtime = a.sup.Counters()
	}
	if st.Posting.Stopped {
		st.Status = "stopped"
	}
	return st
}
