package app

import (
	"context"
	"strings"

	"postbot/internal/config"
	logx "postbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: apply only the newest.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig re-applies the hot-reloadable sections: logging and the posting
// schedule, window, timezone, retry and budget settings.
func (a *App) applyConfig(old, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(old, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	for _, s := range sections {
		if config.RequiresRestart(s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}
	if old != nil && messagesPath(old) != messagesPath(next) {
		a.log.Warn("posting.messages changed; restart required to reload messages")
	}

	a.logs.Apply(mapLoggingConfig(next))

	pc, err := mapPostingConfig(next)
	if err != nil {
		a.log.Warn("invalid posting config; keeping previous", logx.Err(err))
	} else {
		a.posting.Apply(pc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}
