package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WorkerConfig struct {
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// SchedulingConfig drives stage dates and the poller intervals.
type SchedulingConfig struct {
	Timezone        string        `mapstructure:"timezone"`
	StartHour       int           `mapstructure:"start_hour"`
	AdvanceInterval time.Duration `mapstructure:"advance_interval"`
	ReapInterval    time.Duration `mapstructure:"reap_interval"`
}

type EliminationConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

type MailgunConfig struct {
	Domain string `mapstructure:"domain"`
	APIKey string `mapstructure:"api_key"`

	// Templates maps a notification kind to a stored Mailgun template name.
	// Kinds without an entry are sent as rendered text.
	Templates map[string]string `mapstructure:"templates"`
}

type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type NotifierConfig struct {
	Provider string         `mapstructure:"provider"` // "log", "mailgun" or "sendgrid"
	From     string         `mapstructure:"from"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Mailgun  MailgunConfig  `mapstructure:"mailgun"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Scheduling  SchedulingConfig  `mapstructure:"scheduling"`
	Elimination EliminationConfig `mapstructure:"elimination"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default, even an empty one, so AutomaticEnv can
	// override it during Unmarshal.
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queues", map[string]int{"critical": 6, "default": 3})
	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.start_hour", 9)
	v.SetDefault("scheduling.advance_interval", time.Hour)
	v.SetDefault("scheduling.reap_interval", time.Hour)
	v.SetDefault("elimination.parallelism", 8)
	v.SetDefault("notifier.provider", "log")
	v.SetDefault("notifier.from", "hiring@example.com")
	v.SetDefault("notifier.timeout", 10*time.Second)
	v.SetDefault("notifier.mailgun.domain", "")
	v.SetDefault("notifier.mailgun.api_key", "")
	v.SetDefault("notifier.sendgrid.api_key", "")
	v.SetDefault("notifier.breaker.max_failures", 5)
	v.SetDefault("notifier.breaker.open_timeout", 30*time.Second)
	v.SetDefault("server.addr", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig reads config.yaml (from path when given, else the current directory),
// then STAGEHAND_* environment variables, on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// database.dsn -> STAGEHAND_DATABASE_DSN
	v.SetEnvPrefix("STAGEHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when defaults and env vars cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &cfg, nil
}

// Location resolves the scheduling timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduling.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling.timezone %q: %w", c.Scheduling.Timezone, err)
	}
	return loc, nil
}
