package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Values load from a
// YAML file and can be overridden through TWAP_* environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchanges struct {
		Binance struct {
			WSURL   string `yaml:"ws_url"`
			RestURL string `yaml:"rest_url"`
		} `yaml:"binance"`
		Kraken struct {
			WSURL   string `yaml:"ws_url"`
			RestURL string `yaml:"rest_url"`
		} `yaml:"kraken"`
	} `yaml:"exchanges"`

	Engine struct {
		// AcceptTimeoutSec bounds the wait for first market data at
		// order acceptance.
		AcceptTimeoutSec int `yaml:"accept_timeout_sec"`
		// PollIntervalMS is the market-data polling cadence during that wait.
		PollIntervalMS int `yaml:"poll_interval_ms"`
	} `yaml:"engine"`

	Hub struct {
		BroadcastIntervalMS int `yaml:"broadcast_interval_ms"`
	} `yaml:"hub"`

	Journal struct {
		// Path of the SQLite order journal. Empty disables journaling.
		Path string `yaml:"path"`
	} `yaml:"journal"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration pointing at the production
// exchange endpoints.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "twap-go"
	cfg.App.Version = "1.0.0"
	cfg.Exchanges.Binance.WSURL = "wss://stream.binance.com:9443/ws"
	cfg.Exchanges.Binance.RestURL = "https://api.binance.com"
	cfg.Exchanges.Kraken.WSURL = "wss://ws.kraken.com"
	cfg.Exchanges.Kraken.RestURL = "https://api.kraken.com"
	cfg.Engine.AcceptTimeoutSec = 30
	cfg.Engine.PollIntervalMS = 1000
	cfg.Hub.BroadcastIntervalMS = 1000
	cfg.Server.Addr = ":8000"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads and validates the configuration. A missing file is not
// an error: defaults apply, then environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	for _, ws := range []struct{ name, url string }{
		{"binance", c.Exchanges.Binance.WSURL},
		{"kraken", c.Exchanges.Kraken.WSURL},
	} {
		if !strings.HasPrefix(ws.url, "ws://") && !strings.HasPrefix(ws.url, "wss://") {
			return fmt.Errorf("invalid %s WS URL: %s", ws.name, ws.url)
		}
	}
	for _, rest := range []struct{ name, url string }{
		{"binance", c.Exchanges.Binance.RestURL},
		{"kraken", c.Exchanges.Kraken.RestURL},
	} {
		if !strings.HasPrefix(rest.url, "http://") && !strings.HasPrefix(rest.url, "https://") {
			return fmt.Errorf("invalid %s REST URL: %s", rest.name, rest.url)
		}
	}

	if c.Engine.AcceptTimeoutSec <= 0 {
		return fmt.Errorf("accept timeout must be positive")
	}
	if c.Engine.PollIntervalMS <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Hub.BroadcastIntervalMS <= 0 {
		return fmt.Errorf("broadcast interval must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	return nil
}

// overrideWithEnv applies TWAP_* environment variables on top of the file.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("TWAP_BINANCE_WS_URL"); v != "" {
		cfg.Exchanges.Binance.WSURL = v
	}
	if v := os.Getenv("TWAP_BINANCE_REST_URL"); v != "" {
		cfg.Exchanges.Binance.RestURL = v
	}
	if v := os.Getenv("TWAP_KRAKEN_WS_URL"); v != "" {
		cfg.Exchanges.Kraken.WSURL = v
	}
	if v := os.Getenv("TWAP_KRAKEN_REST_URL"); v != "" {
		cfg.Exchanges.Kraken.RestURL = v
	}
	if v := os.Getenv("TWAP_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TWAP_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("TWAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
