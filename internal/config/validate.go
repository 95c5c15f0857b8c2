package config

import (
	"errors"
	"fmt"
	"time"
)

/*
Validate checks required fields for the enabled features:
- Database driver and DSN
- Redis and worker queues (only when asynq is used)
- Scheduling timezone, start hour and poller intervals
- Notifier provider credentials
*/

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scheduling.StartHour < 0 || c.Scheduling.StartHour > 23 {
		return fmt.Errorf("scheduling.start_hour (%d) must be between 0 and 23", c.Scheduling.StartHour)
	}
	if c.Scheduling.AdvanceInterval < time.Minute {
		return errors.New("scheduling.advance_interval must be at least one minute")
	}
	if c.Scheduling.ReapInterval < time.Minute {
		return errors.New("scheduling.reap_interval must be at least one minute")
	}

	if c.Elimination.Parallelism <= 0 {
		return errors.New("elimination.parallelism must be a positive integer")
	}

	switch c.Notifier.Provider {
	case "log":
	case "mailgun":
		if c.Notifier.Mailgun.Domain == "" || c.Notifier.Mailgun.APIKey == "" {
			return errors.New("notifier.mailgun.domain and notifier.mailgun.api_key are required for the mailgun provider")
		}
	case "sendgrid":
		if c.Notifier.SendGrid.APIKey == "" {
			return errors.New("notifier.sendgrid.api_key is required for the sendgrid provider")
		}
	default:
		return fmt.Errorf("notifier.provider must be log, mailgun or sendgrid, got %q", c.Notifier.Provider)
	}
	if c.Notifier.Provider != "log" && c.Notifier.From == "" {
		return errors.New("notifier.from is required when sending email")
	}

	return nil
}

// ValidateQueue checks the Redis and worker settings used by the worker and cron commands.
func (c *Config) ValidateQueue() error {
	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	if len(c.Worker.Queues) == 0 {
		return errors.New("worker.queues must define at least one queue")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}
	return nil
}
