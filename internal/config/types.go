package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("3s", "24h") and are parsed when the app maps sections onto components.
type Config struct {
	API       APIConfig       `json:"api"`
	Accounts  AccountsConfig  `json:"accounts"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Quests    QuestsConfig    `json:"quests"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Notify    NotifyConfig    `json:"notify"`
}

type APIConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
	// Retries is the number of extra attempts per call. Nil means 1.
	Retries    *int   `json:"retries,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
	// RatePerSec paces requests per egress; 0 disables pacing.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	RateBurst  int     `json:"rate_burst,omitempty"`
	IPCheckURL string  `json:"ip_check_url,omitempty"`
}

type AccountsConfig struct {
	TokensFile  string `json:"tokens_file"`
	ProxiesFile string `json:"proxies_file,omitempty"`
	UseProxy    bool   `json:"use_proxy"`
}

type SchedulerConfig struct {
	BatchSize        int    `json:"batch_size,omitempty"`
	BatchSizeNoProxy int    `json:"batch_size_no_proxy,omitempty"`
	BatchPause       string `json:"batch_pause,omitempty"`
	UnitTimeout      string `json:"unit_timeout,omitempty"`
	StartDelayMin    string `json:"start_delay_min,omitempty"`
	StartDelayMax    string `json:"start_delay_max,omitempty"`

	// IntervalMinutes and Schedule replace the cooldown-derived wait with a
	// fixed cadence. Schedule wins when both are set.
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
	Schedule        string `json:"schedule,omitempty"`
}

type QuestsConfig struct {
	DiceTitle     string   `json:"dice_title,omitempty"`
	SocialPrefix  string   `json:"social_prefix,omitempty"`
	SocialExclude []string `json:"social_exclude,omitempty"`

	PollInterval string `json:"poll_interval,omitempty"`
	MaxPolls     int    `json:"max_polls,omitempty"`
	// MaxRerolls nil means 3.
	MaxRerolls      *int   `json:"max_rerolls,omitempty"`
	SocialDelay     string `json:"social_delay,omitempty"`
	ProfileAttempts int    `json:"profile_attempts,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// Debug forces level debug.
	Debug   bool          `json:"debug,omitempty"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	Enabled      bool   `json:"enabled"`
	Token        string `json:"token,omitempty"`
	ChatID       int64  `json:"chat_id,omitempty"`
	ThreadID     int    `json:"thread_id,omitempty"`
	OnlyFailures bool   `json:"only_failures,omitempty"`
	// RetryMax is the number of extra send attempts. Nil means 2.
	RetryMax     *int   `json:"retry_max,omitempty"`
}
