package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks cross-field constraints that the strict decoder can't express.
// It is used both at startup and as the reload validator, so a bad edit never
// reaches running services.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Discord.Token) == "" {
		return errors.New("discord.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	poll, err := ParseDurationOrDefault("openfront.lobby_poll_interval", c.OpenFront.LobbyPollInterval, 2*time.Second)
	if err != nil {
		return err
	}
	if poll < time.Second {
		return fmt.Errorf("openfront.lobby_poll_interval: %s is below the 1s minimum", poll)
	}
	if _, err := ParseDurationField("openfront.request_timeout", c.OpenFront.RequestTimeout); err != nil {
		return err
	}
	if c.OpenFront.RatePerSec < 0 {
		return errors.New("openfront.rate_per_sec must be >= 0")
	}

	if _, err := ParseDurationField("results.retry_delay", c.Results.RetryDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("results.retention", c.Results.Retention); err != nil {
		return err
	}
	if c.Results.FailureLimit < 0 {
		return errors.New("results.failure_limit must be >= 0")
	}
	if c.Results.Workers < 0 {
		return errors.New("results.workers must be >= 0")
	}
	if spec := strings.TrimSpace(c.Results.PruneSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("results.prune_schedule: invalid cron spec %q: %w", spec, err)
		}
	}
	return nil
}
