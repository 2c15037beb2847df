package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultListen   = ":8080"
	DefaultDataPath = "WHO-COVID-19-global-data.csv"
	DefaultTopN     = 10
)

// Config holds the dashboard configuration parsed from config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Listen is the address the API and dashboard listen on (default :8080).
	Listen string `yaml:"listen"`
}

// DataConfig describes where the WHO CSV comes from.
type DataConfig struct {
	// Path is the local CSV file, tried first.
	Path string `yaml:"path"`

	// URL is the fallback download location when the local file is
	// missing. The DATA_URL environment variable takes precedence.
	URL string `yaml:"url"`

	// Watch reloads the dataset when the local file changes.
	Watch bool `yaml:"watch"`
}

// DashboardConfig holds presentation defaults.
type DashboardConfig struct {
	// TopN is the default size of the top-countries ranking.
	TopN int `yaml:"top_n"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Listen: DefaultListen},
		Data:      DataConfig{Path: DefaultDataPath, Watch: true},
		Dashboard: DashboardConfig{TopN: DefaultTopN},
	}
}

// Load reads the config file at path, fills unset fields with defaults
// and applies environment overrides. An empty path yields the defaults
// (still with env overrides applied).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Data.Path == "" {
		c.Data.Path = DefaultDataPath
	}
	if c.Dashboard.TopN <= 0 {
		c.Dashboard.TopN = DefaultTopN
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATA_URL"); v != "" {
		c.Data.URL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.Listen = v
	}
}
