package config

type Config struct {
	Service   ServiceConfig   `json:"service"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Refresh   RefreshConfig   `json:"refresh,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
}

// ServiceConfig points the client at the remote catalog/enrollment endpoints.
// Blank identifier fields fall back to the sirius client's built-in values
// for the Sochi Sirius deployment.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type ServiceConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	// AppID is the application marker sent with timeline reads.
	AppID string `json:"app_id,omitempty"`
	// FormID identifies the enrollment form on the remote side.
	FormID string `json:"form_id,omitempty"`
	// UserField is the numeric form field carrying the account's user id.
	UserField string `json:"user_field,omitempty"`

	// RequestTimeout bounds a single HTTP request. Enrollment attempts that
	// time out count as rejected, they are never fatal.
	RequestTimeout string `json:"request_timeout,omitempty"`

	// TimelineRatePerMin throttles catalog reads (never enrollment attempts).
	// <= 0 means a default of 30/min.
	TimelineRatePerMin int `json:"timeline_rate_per_min,omitempty"`
}

// SchedulerConfig controls the enrollment scheduler core.
//
// Margin is subtracted from each registration window's open instant before
// the first attempt fires; it compensates for clock and network skew.
// Armed records capture the margin at insertion, hot-reload only affects
// records armed afterwards.
type SchedulerConfig struct {
	// Margin is a Go duration string. Default "3s".
	Margin string `json:"margin,omitempty"`
	// Grace is how long the progress reporter lingers after the last
	// deadline passes. Default "5s".
	Grace string `json:"grace,omitempty"`
	// Horizon filters out events whose window opens further ahead than this.
	// Default "48h".
	Horizon string `json:"horizon,omitempty"`

	// StopAfterClose makes a retry loop abandon its record once the
	// registration window has provably closed. The stock behavior retries
	// forever; leave this off for a faithful run.
	StopAfterClose bool `json:"stop_after_close,omitempty"`
}

// RefreshConfig controls the advisory timeline re-check for armed records.
type RefreshConfig struct {
	Enabled bool `json:"enabled"`
	// Every is a Go duration string. Default "10m".
	Every string `json:"every,omitempty"`
}

// NotifyConfig controls the optional Telegram push on loop completion.
// Nil or a missing token disables the pipeline entirely.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig locates the sqlite account store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}
