package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration
type Config struct {
	AppURL     string `yaml:"app_url"`
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"` // metadata database location

	Log LogConfig `yaml:"log"`

	Auth      AuthConfig      `yaml:"auth"`
	Container ContainerConfig `yaml:"container"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Beta      BetaConfig      `yaml:"beta"`
}

// LogConfig controls logger output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AuthConfig holds token signing and account defaults
type AuthConfig struct {
	SecretKey        string `yaml:"secret_key"`
	TokenTTLMinutes  int    `yaml:"token_ttl_minutes"`
	DefaultCPU       int    `yaml:"default_cpu"`
	DefaultDiskMB    int64  `yaml:"default_disk_mb"`
	DefaultWallpaper string `yaml:"default_wallpaper"`
}

// TokenTTL returns the access token lifetime
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// ContainerConfig holds everything the lifecycle manager passes to the
// engine when provisioning a user container.
type ContainerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	EngineURL        string `yaml:"engine_url"`
	Image            string `yaml:"image"`
	Runtime          string `yaml:"runtime"`
	Network          string `yaml:"network"`
	UserDataBasePath string `yaml:"user_data_base_path"`
	CPUPeriodUS      int64  `yaml:"cpu_period_us"`
	RAMPerCPU        string `yaml:"ram_per_cpu"`
	PidsLimit        int64  `yaml:"pids_limit"`
	NetworkRate      string `yaml:"network_rate"`
}

// RateLimitBackend selects the limiter implementation
type RateLimitBackend string

const (
	RateLimitMemory RateLimitBackend = "memory"
	RateLimitRedis  RateLimitBackend = "redis"
)

// RateLimitConfig selects the backend and the per-route limits
type RateLimitConfig struct {
	Backend       RateLimitBackend `yaml:"backend"`
	RedisURL      string           `yaml:"redis_url"`
	WindowSeconds int              `yaml:"window_seconds"`
	// per-route request limits within one window
	RegisterLimit     int `yaml:"register_limit"`
	LoginLimit        int `yaml:"login_limit"`
	UsernameInfoLimit int `yaml:"username_info_limit"`
}

// Window returns the fixed-window duration
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// BetaConfig controls the invite-token gate on registration
type BetaConfig struct {
	Enabled          bool `yaml:"enabled"`
	TokenExpireHours int  `yaml:"token_expire_hours"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		AppURL:     "http://localhost:8000",
		ListenAddr: ":8000",
		DataDir:    "/var/lib/aisu",
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		Auth: AuthConfig{
			TokenTTLMinutes:  60 * 24,
			DefaultCPU:       2,
			DefaultDiskMB:    5120,
			DefaultWallpaper: "default.jpg",
		},
		Container: ContainerConfig{
			Enabled:          true,
			Image:            "aisu-user:latest",
			Runtime:          "sysbox-runc",
			Network:          "aisu-net",
			UserDataBasePath: "/data/users",
			CPUPeriodUS:      100000,
			RAMPerCPU:        "1g",
			PidsLimit:        64,
			NetworkRate:      "5mbit",
		},
		RateLimit: RateLimitConfig{
			Backend:           RateLimitMemory,
			WindowSeconds:     60,
			RegisterLimit:     5,
			LoginLimit:        10,
			UsernameInfoLimit: 5,
		},
		Beta: BetaConfig{
			Enabled:          false,
			TokenExpireHours: 72,
		},
	}
}

// Load reads configuration from a YAML file, applies environment
// overrides, and validates. An empty path yields defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from the environment. Only the keys
// operators commonly need to change at deploy time are exposed.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AISU_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AISU_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("AISU_SECRET_KEY"); v != "" {
		cfg.Auth.SecretKey = v
	}
	if v := os.Getenv("AISU_DOCKER_HOST"); v != "" {
		cfg.Container.EngineURL = v
	}
	if v := os.Getenv("AISU_CONTAINER_IMAGE"); v != "" {
		cfg.Container.Image = v
	}
	if v := os.Getenv("AISU_USER_DATA_PATH"); v != "" {
		cfg.Container.UserDataBasePath = v
	}
	if v := os.Getenv("AISU_REDIS_URL"); v != "" {
		cfg.RateLimit.RedisURL = v
		cfg.RateLimit.Backend = RateLimitRedis
	}
	if v := os.Getenv("AISU_CONTAINER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Container.Enabled = b
		}
	}
	if v := os.Getenv("AISU_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required")
	}
	if c.RateLimit.Backend == RateLimitRedis && c.RateLimit.RedisURL == "" {
		return fmt.Errorf("rate_limit.redis_url is required for the redis backend")
	}
	if c.Container.Enabled {
		if c.Container.Image == "" {
			return fmt.Errorf("container.image is required")
		}
		if c.Container.CPUPeriodUS <= 0 {
			return fmt.Errorf("container.cpu_period_us must be positive")
		}
	}
	return nil
}
