// Package config loads omgd/omgctl runtime configuration the way the
// teacher's pkg/config does: environment-variable overrides decoded with
// envdecode, an optional .env file for local runs, and an on-disk
// config.toml for values a user wants to keep across invocations (§6).
package config

import (
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// LoggingConfig controls omgd/omgctl's structured logging.
type LoggingConfig struct {
	Level  string `toml:"level" env:"OMG_LOG_LEVEL"`
	Format string `toml:"format" env:"OMG_LOG_FORMAT"`
}

// DaemonConfig controls omgd's listening socket and admin HTTP surface.
type DaemonConfig struct {
	SocketPath   string `toml:"socket_path" env:"OMG_SOCKET_PATH"`
	AdminAddr    string `toml:"admin_addr" env:"OMG_ADMIN_ADDR"`
	RedisAddr    string `toml:"redis_addr" env:"OMG_REDIS_ADDR"`
	CronSchedule string `toml:"maintenance_cron" env:"OMG_MAINTENANCE_CRON"`
	KeyringPath  string `toml:"keyring_path" env:"OMG_KEYRING_PATH"`
}

// TelemetryConfig controls the license/usage telemetry event queue (§4.4).
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled" env:"OMG_TELEMETRY"`
	Endpoint string `toml:"endpoint" env:"OMG_TELEMETRY_ENDPOINT"`
}

// Config is the top-level configuration for both omgd and omgctl.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Daemon    DaemonConfig    `toml:"daemon"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// New returns a Config populated with the same defaults paths.Resolve()
// would pick when no config.toml or environment overrides are present.
func New() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Daemon: DaemonConfig{
			CronSchedule: "@every 15m",
		},
		Telemetry: TelemetryConfig{
			Enabled:  true,
			Endpoint: "https://telemetry.omg.dev/v1/events",
		},
	}
}

// Load reads configFile (if it exists), then applies environment
// overrides via envdecode, in that file-then-env precedence order. A
// missing configFile is not an error: the defaults plus environment
// apply.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, err
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return toml.Unmarshal(data, cfg)
}
