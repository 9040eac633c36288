package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	API       APIConfig       `yaml:"api"`
	State     StateConfig     `yaml:"state"`
	Cart      CartConfig      `yaml:"cart"`
	Favorites FavoritesConfig `yaml:"favorites"`
	Events    EventsConfig    `yaml:"events"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Log       LogConfig       `yaml:"log"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type APIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PageSize        int           `yaml:"page_size"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// StateConfig selects where tokens, the guest cart key and guest favorites
// are persisted between runs.
type StateConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// CartConfig.MergeGuestOnLogin calls /cart/merge/ when a guest logs in.
// Backends without that endpoint merge on their own; disable it for them.
type CartConfig struct {
	MergeGuestOnLogin bool `yaml:"merge_guest_on_login"`
}

type FavoritesConfig struct {
	MergeGuestOnLogin bool `yaml:"merge_guest_on_login"`
}

type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GatewayConfig struct {
	HTTPPort           string        `yaml:"http_port"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type NotifyConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:         "http://localhost:8000/api",
			RequestTimeout:  30 * time.Second,
			PageSize:        12,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		State: StateConfig{
			Backend:     BackendSQLite,
			Path:        defaultStatePath(),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "chibi",
		},
		Cart: CartConfig{
			MergeGuestOnLogin: true,
		},
		Events: EventsConfig{
			Topic: "storefront-activity",
		},
		Gateway: GatewayConfig{
			HTTPPort:           "8080",
			ShutdownTimeout:    10 * time.Second,
			MaxRequestBodySize: 10 << 20, // 10MB, admin image uploads
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Notify: NotifyConfig{
			DefaultTTL: 3 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file in the working directory and finally the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.API.BaseURL = getEnv("CHIBI_API_URL", cfg.API.BaseURL)
	cfg.State.Backend = getEnv("CHIBI_STATE_BACKEND", cfg.State.Backend)
	cfg.State.Path = getEnv("CHIBI_STATE_PATH", cfg.State.Path)
	cfg.State.RedisAddr = getEnv("CHIBI_REDIS_ADDR", cfg.State.RedisAddr)
	cfg.State.RedisPassword = getEnv("CHIBI_REDIS_PASSWORD", cfg.State.RedisPassword)
	cfg.Events.Topic = getEnv("CHIBI_KAFKA_TOPIC", cfg.Events.Topic)
	cfg.Gateway.HTTPPort = getEnv("CHIBI_HTTP_PORT", cfg.Gateway.HTTPPort)
	cfg.Log.Level = getEnv("CHIBI_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("CHIBI_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("CHIBI_LOG_FILE", cfg.Log.File)

	if v := os.Getenv("CHIBI_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = splitList(v)
	}
	if v := os.Getenv("CHIBI_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHIBI_REQUEST_TIMEOUT: %w", err)
		}
		cfg.API.RequestTimeout = d
	}
	if v := os.Getenv("CHIBI_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CHIBI_PAGE_SIZE: %w", err)
		}
		cfg.API.PageSize = n
	}
	if v := os.Getenv("CHIBI_MERGE_GUEST_CART"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CHIBI_MERGE_GUEST_CART: %w", err)
		}
		cfg.Cart.MergeGuestOnLogin = b
	}
	if v := os.Getenv("CHIBI_MERGE_GUEST_FAVORITES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CHIBI_MERGE_GUEST_FAVORITES: %w", err)
		}
		cfg.Favorites.MergeGuestOnLogin = b
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api base url is required")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.API.PageSize)
	}
	switch c.State.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	if c.State.Backend == BackendSQLite && c.State.Path == "" {
		return errors.New("state path is required for the sqlite backend")
	}
	if c.State.Backend == BackendRedis && c.State.RedisAddr == "" {
		return errors.New("redis address is required for the redis backend")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chibi-state.db"
	}
	return filepath.Join(home, ".chibi", "state.db")
}
