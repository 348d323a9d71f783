package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides.
const (
	EnvConfigPath    = "QUESTSWEEP_CONFIG"
	EnvTelegramToken = "QUESTSWEEP_TELEGRAM_TOKEN"
	EnvBaseURL       = "QUESTSWEEP_BASE_URL"
)

// DefaultPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultPath = "config.yaml"

func intPtr(v int) *int { return &v }

// ApplyDefaults fills every omitted field.
func ApplyDefaults(c *Config) {
	if c.API.Timeout == "" {
		c.API.Timeout = "30s"
	}
	if c.API.Retries == nil {
		c.API.Retries = intPtr(1)
	}
	if c.API.RetryDelay == "" {
		c.API.RetryDelay = "3s"
	}
	if c.API.IPCheckURL == "" {
		c.API.IPCheckURL = "https://api.ipify.org?format=json"
	}
	if c.API.RatePerSec > 0 && c.API.RateBurst <= 0 {
		c.API.RateBurst = 1
	}

	if c.Accounts.TokensFile == "" {
		c.Accounts.TokensFile = "data.txt"
	}
	if c.Accounts.ProxiesFile == "" {
		c.Accounts.ProxiesFile = "proxy.txt"
	}

	s := &c.Scheduler
	if s.BatchSize <= 0 {
		s.BatchSize = 10
	}
	if s.BatchSizeNoProxy <= 0 {
		s.BatchSizeNoProxy = s.BatchSize
	}
	if s.BatchPause == "" {
		s.BatchPause = "3s"
	}
	if s.UnitTimeout == "" {
		s.UnitTimeout = "24h"
	}

	q := &c.Quests
	if q.DiceTitle == "" {
		q.DiceTitle = "Daily Dice Roll"
	}
	if q.SocialPrefix == "" {
		q.SocialPrefix = "Follow "
	}
	if q.SocialExclude == nil {
		q.SocialExclude = []string{"Follow Discord Server"}
	}
	if q.PollInterval == "" {
		q.PollInterval = "1s"
	}
	if q.MaxPolls <= 0 {
		q.MaxPolls = 60
	}
	if q.MaxRerolls == nil {
		q.MaxRerolls = intPtr(3)
	}
	if q.SocialDelay == "" {
		q.SocialDelay = "1s"
	}
	if q.ProfileAttempts <= 0 {
		q.ProfileAttempts = 2
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Debug {
		c.Logging.Level = "debug"
	}
	if c.Logging.Console == nil {
		on := true
		c.Logging.Console = &on
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		switch strings.ToLower(c.Storage.Driver) {
		case "sqlite", "sqlite3":
			c.Storage.Path = "questsweep.db"
		case "file":
			c.Storage.Path = "questsweep"
		}
	}

	if c.Notify.RetryMax == nil {
		c.Notify.RetryMax = intPtr(2)
	}
}

// LoadEnv reads .env style files into the process environment. Missing files
// are ignored; existing variables are not overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func ApplyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		c.Notify.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.API.BaseURL = v
	}
}

// ResolvePath picks the config path: explicit flag, then EnvConfigPath, then
// DefaultPath.
func ResolvePath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Validate checks a defaulted config.
func Validate(c *Config) error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url: invalid url %q", c.API.BaseURL))
	}
	if c.API.Retries != nil && *c.API.Retries < 0 {
		errs = append(errs, errors.New("api.retries must be >= 0"))
	}
	if c.API.RatePerSec < 0 {
		errs = append(errs, errors.New("api.rate_per_sec must be >= 0"))
	}
	if c.Quests.MaxRerolls != nil && *c.Quests.MaxRerolls < 0 {
		errs = append(errs, errors.New("quests.max_rerolls must be >= 0"))
	}
	if c.Notify.RetryMax != nil && *c.Notify.RetryMax < 0 {
		errs = append(errs, errors.New("notify.retry_max must be >= 0"))
	}
	if c.Scheduler.IntervalMinutes < 0 {
		errs = append(errs, errors.New("scheduler.interval_minutes must be >= 0"))
	}

	durations := map[string]string{
		"api.timeout":               c.API.Timeout,
		"api.retry_delay":           c.API.RetryDelay,
		"scheduler.batch_pause":     c.Scheduler.BatchPause,
		"scheduler.unit_timeout":    c.Scheduler.UnitTimeout,
		"scheduler.start_delay_min": c.Scheduler.StartDelayMin,
		"scheduler.start_delay_max": c.Scheduler.StartDelayMax,
		"quests.poll_interval":      c.Quests.PollInterval,
		"quests.social_delay":       c.Quests.SocialDelay,
		"storage.busy_timeout":      c.Storage.BusyTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	lo, _ := ParseDurationField("", c.Scheduler.StartDelayMin)
	hi, _ := ParseDurationField("", c.Scheduler.StartDelayMax)
	if hi > 0 && lo > hi {
		errs = append(errs, errors.New("scheduler.start_delay_min must be <= start_delay_max"))
	}

	if c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Token) == "" {
			errs = append(errs, fmt.Errorf("notify.token is required when enabled (or set %s)", EnvTelegramToken))
		}
		if c.Notify.ChatID == 0 {
			errs = append(errs, errors.New("notify.chat_id is required when enabled"))
		}
	}
	return errors.Join(errs...)
}
