package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, StoreMemory, cfg.Scheduler.Store)
	assert.Equal(t, time.Hour, cfg.Scheduler.RetryDelay)
	assert.Equal(t, time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.ReminderLead)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DrainTimeout)
	assert.Equal(t, uint32(5), cfg.Notify.BreakerFailures)
	assert.Equal(t, time.UTC, cfg.Scheduler.Location())
}

func TestOverridesFromEnvironment(t *testing.T) {
	t.Setenv("SCHEDULER_STORE", "Postgres")
	t.Setenv("SCHEDULER_RETRY_DELAY", "90m")
	t.Setenv("SCHEDULER_TIMEZONE", "Mars/Olympus_Mons")
	t.Setenv("ALLOWED_ORIGINS", "https://portal.example.edu, ,https://admin.example.edu")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, StorePostgres, cfg.Scheduler.Store)
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.RetryDelay)
	require.Equal(t, []string{"https://portal.example.edu", "https://admin.example.edu"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.UTC, cfg.Scheduler.Location())
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("soon", time.Second))
	assert.Equal(t, 2*time.Minute, parseDuration("2m", time.Second))
}
