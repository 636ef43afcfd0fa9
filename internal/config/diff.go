package config

import (
	"sort"
	"strings"

	logx "siriusbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (notify token, account credentials)
// are never included, only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Service != newCfg.Service {
		changed = append(changed, "service")
		attrs = append(attrs,
			logx.String("service.base_url", strings.TrimSpace(newCfg.Service.BaseURL)),
			logx.String("service.request_timeout", strings.TrimSpace(newCfg.Service.RequestTimeout)),
			logx.Int("service.timeline_rate_per_min", newCfg.Service.TimelineRatePerMin),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.margin", strings.TrimSpace(newCfg.Scheduler.Margin)),
			logx.String("scheduler.grace", strings.TrimSpace(newCfg.Scheduler.Grace)),
			logx.String("scheduler.horizon", strings.TrimSpace(newCfg.Scheduler.Horizon)),
			logx.Bool("scheduler.stop_after_close", newCfg.Scheduler.StopAfterClose),
		)
	}

	if oldCfg.Refresh != newCfg.Refresh {
		changed = append(changed, "refresh")
		attrs = append(attrs,
			logx.Bool("refresh.enabled", newCfg.Refresh.Enabled),
			logx.String("refresh.every", strings.TrimSpace(newCfg.Refresh.Every)),
		)
	}

	// Notify (never log token). Nil means disabled.
	oN := derefNotify(oldCfg.Notify)
	nN := derefNotify(newCfg.Notify)
	if oN != nN {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.enabled", nN.Enabled),
			logx.Bool("notify.token_set", strings.TrimSpace(nN.Token) != ""),
			logx.Bool("notify.chat_set", nN.ChatID != 0),
			logx.Int("notify.rate_per_sec", nN.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefNotify(n *NotifyConfig) NotifyConfig {
	if n == nil {
		return NotifyConfig{}
	}
	return *n
}
