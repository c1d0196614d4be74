package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postbot/internal/app"
	"postbot/internal/config"
	logx "postbot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", "", "optional config file (json or yaml)")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file; set variables win")
	flag.BoolVar(&once, "once", false, "post a single message and exit")
	flag.Parse()

	os.Exit(run(cfgPath, envPath, once))
}

func run(cfgPath, envPath string, once bool) int {
	boot := logx.NewConsole("INFO").With(logx.String("comp", "main"))

	if err := config.LoadDotEnv(envPath); err != nil {
		boot.Error("dotenv load failed", logx.Err(err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{ConfigPath: cfgPath})
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			boot.Error("set TWITTER_API_KEY, TWITTER_API_SECRET, TWITTER_ACCESS_TOKEN and TWITTER_ACCESS_SECRET")
		}
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}

	if once {
		err := a.RunOnce(ctx)
		_ = a.Stop(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			return 1
		}
		return 0
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		return 1
	}

	select {
	case <-ctx.Done():
		a.Logger().Info("shutdown requested")
	case <-a.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	return 0
}
