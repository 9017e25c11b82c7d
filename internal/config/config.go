package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "90s" or "250ms" decode,
// which yaml.v3 does not do for the bare type. Plain integers are taken as
// nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration at line %d: %w", value.Line, err)
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		d.Duration = parsed
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration %q", s)
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	SessionQueueSize int      `yaml:"session_queue_size"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
	PingInterval     Duration `yaml:"ping_interval"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
}

type WatchConfig struct {
	Root           string   `yaml:"root"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	Debounce       Duration `yaml:"debounce"`
}

type ClientConfig struct {
	ServerURL    string   `yaml:"server_url"`
	PollInterval Duration `yaml:"poll_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             9090,
			SessionQueueSize: 64,
			IdleTimeout:      Duration{90 * time.Second},
			PingInterval:     Duration{30 * time.Second},
			WriteTimeout:     Duration{10 * time.Second},
		},
		Watch: WatchConfig{
			Root:     ".",
			Debounce: Duration{250 * time.Millisecond},
		},
		Client: ClientConfig{
			ServerURL: "ws://localhost:9090/ws",
		},
	}
}

// Default returns the built-in configuration, used when no config file is
// present.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML config file over the built-in defaults, so a partial file
// only overrides what it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
