package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "config/config.yaml"

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"prod"`
	Icinga  IcingaConfig  `yaml:"icinga"`
	Polling PollingConfig `yaml:"polling"`
	Sender  SenderConfig  `yaml:"sender"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Health  HealthConfig  `yaml:"health"`
	Log     LogConfig     `yaml:"log"`

	// Source is the file the config was read from, empty when only
	// env and defaults were used.
	Source string `yaml:"-"`
}

type IcingaConfig struct {
	BaseURI            string        `yaml:"base_uri" env:"ICINGA_BASE_URI"`
	AuthKey            string        `yaml:"authkey" env:"ICINGA_AUTHKEY"`
	RefreshRate        time.Duration `yaml:"refresh_rate" env:"ICINGA_REFRESH_RATE" env-default:"30s"`
	Timeout            time.Duration `yaml:"timeout" env:"ICINGA_TIMEOUT"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"ICINGA_INSECURE_SKIP_VERIFY"`
	HostFilter         string        `yaml:"host_filter" env:"ICINGA_HOST_FILTER"`
	ServiceFilter      string        `yaml:"service_filter" env:"ICINGA_SERVICE_FILTER"`
}

type PollingConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"POLLING_TIMEOUT" env-default:"25s"`
}

type SenderConfig struct {
	Kind          string        `yaml:"kind" env:"SENDER_KIND" env-default:"log"`
	URL           string        `yaml:"url" env:"SENDER_URL"`
	Token         string        `yaml:"token" env:"SENDER_TOKEN"`
	SubjectPrefix string        `yaml:"subject_prefix" env:"SENDER_SUBJECT_PREFIX" env-default:"dashboard"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
	Retry         RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"10s"`
}

type BufferConfig struct {
	Enabled bool          `yaml:"enabled" env:"BUFFER_ENABLED" env-default:"false"`
	Path    string        `yaml:"path" env-default:"/var/lib/icinga-status/buffer.db"`
	MaxAge  time.Duration `yaml:"max_age" env-default:"24h"`
}

type HealthConfig struct {
	Address string `yaml:"address" env:"HEALTH_ADDRESS" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Load reads the YAML file at configPath (or CONFIG_PATH, or the default
// location) with env overrides. A missing file is not an error: the
// returned config is built from env and defaults alone.
func Load(configPath string) (*Config, error) {
	// optional; real env always wins over .env
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = defaultConfigPath
	}

	var cfg Config
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	} else {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
		cfg.Source = configPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Icinga.RefreshRate < time.Second {
		return fmt.Errorf("icinga.refresh_rate must be at least 1s, got %s", c.Icinga.RefreshRate)
	}

	switch c.Sender.Kind {
	case "log":
	case "http", "nats":
		if c.Sender.URL == "" {
			return fmt.Errorf("sender.url is required for sender kind %q", c.Sender.Kind)
		}
	default:
		return fmt.Errorf("unknown sender kind %q", c.Sender.Kind)
	}

	if c.Sender.Retry.MaxAttempts < 1 {
		return errors.New("sender.retry.max_attempts must be at least 1")
	}

	if c.Buffer.Enabled && c.Buffer.Path == "" {
		return errors.New("buffer.path is required when buffer is enabled")
	}

	return nil
}
