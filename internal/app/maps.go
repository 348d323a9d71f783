package app

import (
	"fmt"
	"strings"
	"time"

	"questsweep/internal/accounts"
	"questsweep/internal/client"
	"questsweep/internal/config"
	"questsweep/internal/notify"
	"questsweep/internal/quest"
	"questsweep/internal/storage"
	"questsweep/internal/sweep"
	logx "questsweep/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	level := cfg.Logging.Level
	if cfg.Logging.Debug {
		level = "debug"
	}
	return logx.Config{
		Level:   level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "memory", "none":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}, nil
	case "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapClientFactory builds one client per account run. Accounts sharing an
// egress share its rate limiter.
func mapClientFactory(cfg *config.Config, log logx.Logger) (sweep.ClientFactory, error) {
	timeout, err := config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	delay, err := config.ParseDurationField("api.retry_delay", cfg.API.RetryDelay)
	if err != nil {
		return nil, err
	}
	retries := 1
	if cfg.API.Retries != nil {
		retries = *cfg.API.Retries
	}
	limiters := client.NewLimiters(cfg.API.RatePerSec, cfg.API.RateBurst)
	base := client.Config{
		BaseURL:    cfg.API.BaseURL,
		Retries:    retries,
		RetryDelay: delay,
		Timeout:    timeout,
		IPCheckURL: cfg.API.IPCheckURL,
	}
	return func(acc accounts.Account, userAgent string) (sweep.AccountAPI, error) {
		cc := base
		cc.Token = acc.Token
		cc.Proxy = acc.Proxy
		cc.UserAgent = userAgent
		cc.Limiter = limiters.For(acc.Proxy)
		c, err := client.New(cc, log.With(logx.String("account", acc.Label())))
		if err != nil {
			return nil, err
		}
		return c, nil
	}, nil
}

func mapBatchConfig(cfg *config.Config) (sweep.BatchConfig, error) {
	pause, err := config.ParseDurationField("scheduler.batch_pause", cfg.Scheduler.BatchPause)
	if err != nil {
		return sweep.BatchConfig{}, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.unit_timeout", cfg.Scheduler.UnitTimeout, 24*time.Hour)
	if err != nil {
		return sweep.BatchConfig{}, err
	}
	size := cfg.Scheduler.BatchSize
	if !cfg.Accounts.UseProxy && cfg.Scheduler.BatchSizeNoProxy > 0 {
		size = cfg.Scheduler.BatchSizeNoProxy
	}
	return sweep.BatchConfig{Size: size, Pause: pause, UnitTimeout: timeout}, nil
}

func mapRunnerConfig(cfg *config.Config) (sweep.RunnerConfig, error) {
	q := cfg.Quests
	var (
		rc  sweep.RunnerConfig
		err error
	)
	rc.UseProxy = cfg.Accounts.UseProxy
	rc.ProfileAttempts = q.ProfileAttempts
	rc.Rules = quest.Rules{DiceTitle: q.DiceTitle, SocialPrefix: q.SocialPrefix, SocialExclude: q.SocialExclude}

	if rc.StartDelayMin, err = config.ParseDurationField("scheduler.start_delay_min", cfg.Scheduler.StartDelayMin); err != nil {
		return rc, err
	}
	if rc.StartDelayMax, err = config.ParseDurationField("scheduler.start_delay_max", cfg.Scheduler.StartDelayMax); err != nil {
		return rc, err
	}
	if rc.Quest.PollInterval, err = config.ParseDurationOrDefault("quests.poll_interval", q.PollInterval, time.Second); err != nil {
		return rc, err
	}
	if rc.Quest.SocialDelay, err = config.ParseDurationField("quests.social_delay", q.SocialDelay); err != nil {
		return rc, err
	}
	rc.Quest.MaxPolls = q.MaxPolls
	rc.Quest.MaxRerolls = 3
	if q.MaxRerolls != nil {
		rc.Quest.MaxRerolls = *q.MaxRerolls
	}
	return rc, nil
}

func mapSchedule(cfg *config.Config) (sweep.Schedule, error) {
	if strings.TrimSpace(cfg.Scheduler.Schedule) != "" {
		s, err := sweep.ParseSchedule(cfg.Scheduler.Schedule)
		if err != nil {
			return sweep.Schedule{}, fmt.Errorf("scheduler.schedule: %w", err)
		}
		return s, nil
	}
	return sweep.ScheduleFromMinutes(cfg.Scheduler.IntervalMinutes), nil
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	n := cfg.Notify
	retries := 2
	if n.RetryMax != nil {
		retries = *n.RetryMax
	}
	return notify.Config{
		Enabled:      n.Enabled,
		Token:        n.Token,
		ChatID:       n.ChatID,
		ThreadID:     n.ThreadID,
		OnlyFailures: n.OnlyFailures,
		RetryMax:     retries,
	}
}

// loadAccounts reads the token and proxy files named by the config.
func loadAccounts(cfg *config.Config) ([]accounts.Account, error) {
	tokens, err := accounts.LoadLines(cfg.Accounts.TokensFile)
	if err != nil {
		return nil, err
	}
	var proxies []string
	if cfg.Accounts.UseProxy {
		if proxies, err = accounts.LoadLines(cfg.Accounts.ProxiesFile); err != nil {
			return nil, err
		}
	}
	return accounts.Build(tokens, proxies, cfg.Accounts.UseProxy)
}
