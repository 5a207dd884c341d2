package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakTokens = []string{
	"change-me", "dev-token-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	AdminToken  string `env:"ADMIN_TOKEN,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// QRPushIntervalSeconds throttles credential artifact pushes so the sync
	// channel is not saturated with near-duplicate QR codes.
	QRPushIntervalSeconds int `env:"QR_PUSH_INTERVAL_SECONDS" envDefault:"20"`

	ReconnectDelaySeconds int `env:"RECONNECT_DELAY_SECONDS" envDefault:"5"`

	// MemberGraceWindowSeconds is the window after a group is first observed
	// within which newly seen members are attributed to the group's own
	// creation moment. This distinguishes original members from later joins.
	MemberGraceWindowSeconds int `env:"MEMBER_GRACE_WINDOW_SECONDS" envDefault:"30"`

	SyncTimeoutSeconds int `env:"SYNC_TIMEOUT_SECONDS" envDefault:"15"`
	EventRetentionDays int `env:"EVENT_RETENTION_DAYS" envDefault:"90"`
}

func (c *Config) QRPushInterval() time.Duration {
	return time.Duration(c.QRPushIntervalSeconds) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

func (c *Config) MemberGraceWindow() time.Duration {
	return time.Duration(c.MemberGraceWindowSeconds) * time.Second
}

func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if len(c.AdminToken) < 32 {
			return fmt.Errorf("ADMIN_TOKEN must be at least 32 characters in production (generate with: openssl rand -hex 32)")
		}
		for _, weak := range knownWeakTokens {
			if c.AdminToken == weak {
				return fmt.Errorf("ADMIN_TOKEN is a known weak default; set a strong token in production")
			}
		}
	}

	if c.QRPushIntervalSeconds < 5 {
		log.Warn().Int("seconds", c.QRPushIntervalSeconds).
			Msg("QR_PUSH_INTERVAL_SECONDS below 5s may flood the sync channel with duplicate codes")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
