package app

import (
	"context"
	"testing"

	"stagehand/internal/config"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	return cfg
}

func TestNewApp_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	clock := clockwork.NewFakeClock()

	a, err := NewApp(context.Background(), cfg, Options{Clock: clock})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.JobClient)
	assert.NotNil(t, a.Service)
	assert.NotNil(t, a.Advancer)
	assert.NotNil(t, a.Reaper)
	assert.Equal(t, clock, a.Clock)
	assert.NoError(t, a.Store.Ping(context.Background()))
	assert.NoError(t, a.Migrate(context.Background()), "schema statements are idempotent")
}

func TestNewApp_WithQueue(t *testing.T) {
	cfg := sqliteConfig(t)
	a, err := NewApp(context.Background(), cfg, Options{UseQueue: true})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.JobClient)
	assert.Equal(t, cfg.Redis.Address, a.RedisOpt().Addr)
}

func TestNewApp_Errors(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Database.Driver = "mysql"
	_, err := NewApp(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "unsupported database driver")

	cfg = sqliteConfig(t)
	cfg.Notifier.Provider = "pigeon"
	_, err = NewApp(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "init notifier")
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	require.NoError(t, ConfigureLogging(config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	assert.Error(t, ConfigureLogging(config.LoggingConfig{Level: "loud"}))
	assert.Error(t, ConfigureLogging(config.LoggingConfig{Level: "info", Format: "xml"}))
}
