package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts human readable values like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
		RateLimit struct {
			Rate   int      `yaml:"rate"`
			Window Duration `yaml:"window"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	AI struct {
		Prompt      string           `yaml:"prompt"`
		CallTimeout Duration         `yaml:"call_timeout"`
		MaxRetries  int              `yaml:"max_retries"`
		Providers   []ProviderConfig `yaml:"providers"`
		Caps        struct {
			DailyUSD   float64 `yaml:"daily_usd"`
			MonthlyUSD float64 `yaml:"monthly_usd"`
		} `yaml:"caps"`
		Circuit struct {
			Threshold int      `yaml:"threshold"`
			Cooldown  Duration `yaml:"cooldown"`
		} `yaml:"circuit"`
	} `yaml:"ai"`

	Pipeline struct {
		QueueSize     int      `yaml:"queue_size"`
		Workers       int      `yaml:"workers"`
		DedupTTL      Duration `yaml:"dedup_ttl"`
		ShutdownGrace Duration `yaml:"shutdown_grace"`
	} `yaml:"pipeline"`

	Correlation struct {
		Window Duration `yaml:"window"`
	} `yaml:"correlation"`

	Alerts struct {
		WebhookMaxRetries int      `yaml:"webhook_max_retries"`
		WebhookRetryDelay Duration `yaml:"webhook_retry_delay"`
	} `yaml:"alerts"`

	Capture struct {
		BackoffBase Duration `yaml:"backoff_base"`
		BackoffMax  Duration `yaml:"backoff_max"`
		MaxAttempts int      `yaml:"max_attempts"`
	} `yaml:"capture"`
}

// ProviderConfig describes one AI provider in priority order.
type ProviderConfig struct {
	Name        string             `yaml:"name"`
	Kind        string             `yaml:"kind"`
	BaseURL     string             `yaml:"base_url"`
	APIKey      string             `yaml:"api_key"`
	Model       string             `yaml:"model"`
	Modes       []string           `yaml:"modes"`
	CostPerCall map[string]float64 `yaml:"cost_per_call"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Environment variables win over the file so deployments can inject
// secrets without editing it.
func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	for i, p := range c.AI.Providers {
		if p.Name == "" || p.Kind == "" {
			return fmt.Errorf("ai.providers[%d]: name and kind are required", i)
		}
	}
	return nil
}
