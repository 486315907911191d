package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "fr", cfg.Giveaway.DefaultLocale)
	assert.Equal(t, 6*time.Second, cfg.Giveaway.ThrottleMin)
	assert.Equal(t, 12*time.Second, cfg.Giveaway.ThrottleMax)
	assert.Equal(t, time.Minute, cfg.Giveaway.PendingTTL)
	assert.Equal(t, "twitch", cfg.Giveaway.LinkedPlatform)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.False(t, cfg.OAuthEnabled())
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("THROTTLE_MIN", "1s")
	t.Setenv("THROTTLE_MAX", "2s")
	t.Setenv("BOT_TIMEZONE", "Europe/Paris")
	t.Setenv("DISCORD_CLIENT_ID", "id")
	t.Setenv("DISCORD_CLIENT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, time.Second, cfg.Giveaway.ThrottleMin)
	assert.True(t, cfg.OAuthEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}

func TestValidate_Rejects(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	t.Run("driver", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "postgres")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_DRIVER")
	})

	t.Run("throttle window", func(t *testing.T) {
		t.Setenv("THROTTLE_MIN", "10s")
		t.Setenv("THROTTLE_MAX", "5s")
		_, err := Load()
		assert.ErrorContains(t, err, "THROTTLE_MIN")
	})

	t.Run("timezone", func(t *testing.T) {
		t.Setenv("BOT_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.ErrorContains(t, err, "BOT_TIMEZONE")
	})
}
