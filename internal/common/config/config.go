package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug   bool `env:"DEBUG" envDefault:"false"`
	LogJSON bool `env:"LOG_JSON" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"3000"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Discord struct {
		Token        string `env:"DISCORD_TOKEN,notEmpty"`
		AppID        string `env:"DISCORD_APP_ID"`
		GuildID      string `env:"DISCORD_GUILD_ID"`
		ClientID     string `env:"DISCORD_CLIENT_ID"`
		ClientSecret string `env:"DISCORD_CLIENT_SECRET"`
		RedirectURI  string `env:"REDIRECT_URI" envDefault:"http://localhost:3000/oauth2"`

		// Outbound message edits per second and burst, shared by every giveaway.
		EditRate  float64 `env:"DISCORD_EDIT_RATE" envDefault:"4"`
		EditBurst int     `env:"DISCORD_EDIT_BURST" envDefault:"4"`
	}

	Database struct {
		// sqlite or mysql
		Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DB_DSN" envDefault:"data/bot.db"`
	}

	Redis struct {
		Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Giveaway struct {
		DefaultLocale     string        `env:"DEFAULT_LOCALE" envDefault:"fr"`
		Timezone          string        `env:"BOT_TIMEZONE" envDefault:"Local"`
		ThrottleMin       time.Duration `env:"THROTTLE_MIN" envDefault:"6s"`
		ThrottleMax       time.Duration `env:"THROTTLE_MAX" envDefault:"12s"`
		PendingTTL        time.Duration `env:"PENDING_AUTH_TTL" envDefault:"1m"`
		WizardIdleTimeout time.Duration `env:"WIZARD_IDLE_TIMEOUT" envDefault:"15m"`
		ResolveRetryDelay time.Duration `env:"RESOLVE_RETRY_DELAY" envDefault:"30s"`
		LinkedPlatform    string        `env:"LINKED_PLATFORM" envDefault:"twitch"`
	}
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	// A missing .env is normal when variables come from the environment.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Giveaway.ThrottleMin <= 0 || c.Giveaway.ThrottleMax < c.Giveaway.ThrottleMin {
		return errors.New("THROTTLE_MIN must be positive and not greater than THROTTLE_MAX")
	}
	if c.Giveaway.PendingTTL <= 0 {
		return errors.New("PENDING_AUTH_TTL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the zone wizard dates are interpreted in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Giveaway.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_TIMEZONE %q: %w", c.Giveaway.Timezone, err)
	}
	return loc, nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// OAuthEnabled reports whether account linking can be offered to subscribers.
func (c *Config) OAuthEnabled() bool {
	return c.Discord.ClientID != "" && c.Discord.ClientSecret != ""
}
