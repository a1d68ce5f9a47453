package config

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	OpenFront OpenFrontConfig `json:"openfront,omitempty"`
	Results   ResultsConfig   `json:"results"`
}

type DiscordConfig struct {
	Token string `json:"token"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord mirrors a log stream (warnings and up by default) into a
// Discord channel, rate limited so a failure loop can't flood the channel.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the SQLite persistence layer.
//
// Example:
//
//	"storage": { "path": "./data/openfront.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// OpenFrontConfig controls the upstream feed client.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - base_url: the public OpenFront API
//   - lobby_poll_interval: "2s" (minimum "1s")
//   - request_timeout: "10s"
//   - rate_per_sec: 5
type OpenFrontConfig struct {
	BaseURL           string `json:"base_url,omitempty"`
	LobbyPollInterval string `json:"lobby_poll_interval,omitempty"`
	RequestTimeout    string `json:"request_timeout,omitempty"`
	RatePerSec        int    `json:"rate_per_sec,omitempty"`
}

// ResultsConfig controls the results discovery/delivery pipeline.
//
// Defaults (when fields are omitted/zero):
//   - retry_delay: "60s" (fixed reschedule cadence for unfinished matches)
//   - failure_limit: 5 (unexpected failures before the match is dropped)
//   - batch_limit: 25 (due matches claimed per pass)
//   - workers: 2 (concurrent detail fetches)
//   - retention: "168h" (posted-record dedup window)
//   - prune_schedule: "0 4 * * *" (cron spec for the retention pruner)
type ResultsConfig struct {
	Enabled       bool     `json:"enabled"`
	RetryDelay    string   `json:"retry_delay,omitempty"`
	FailureLimit  int      `json:"failure_limit,omitempty"`
	BatchLimit    int      `json:"batch_limit,omitempty"`
	Workers       int      `json:"workers,omitempty"`
	Retention     string   `json:"retention,omitempty"`
	PruneSchedule string   `json:"prune_schedule,omitempty"`
	ExcludedModes []string `json:"excluded_modes,omitempty"`
}
