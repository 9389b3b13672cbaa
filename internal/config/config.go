package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL    MySQLConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Site     SiteConfig
	Router   RouterConfig
	Migrate  bool
	HTTPAddr string
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LogConfig holds logrus configuration
type LogConfig struct {
	Level  string
	Format string
}

// SiteConfig describes the application the urls belong to
type SiteConfig struct {
	BaseURL string
	// DefaultURL is where failed dispatches go when Debug is off.
	DefaultURL string
	Debug      bool
}

// RouterConfig holds the url router switches
type RouterConfig struct {
	Enabled            bool
	CacheEnabled       bool
	InversionEnabled   bool
	CacheBackend       string // memory, redis
	CacheSize          int
	StrictPlaceholders bool
	StrategyTimeoutMs  int
}

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "niceurl"),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_niceurl"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Site: SiteConfig{
			BaseURL:    getEnv("SITE_BASE_URL", ""),
			DefaultURL: getEnv("SITE_DEFAULT_URL", ""),
			Debug:      getEnvBool("SITE_DEBUG", false),
		},
		Router: RouterConfig{
			Enabled:            getEnvBool("PLUGIN_ENABLED", true),
			CacheEnabled:       getEnvBool("CACHE_ENABLED", true),
			InversionEnabled:   getEnvBool("INVERSION_ENABLED", true),
			CacheBackend:       getEnv("CACHE_BACKEND", CacheBackendMemory),
			CacheSize:          getEnvInt("CACHE_SIZE", 10000),
			StrictPlaceholders: getEnvBool("ROUTER_STRICT_PLACEHOLDERS", false),
			StrategyTimeoutMs:  getEnvInt("ROUTER_STRATEGY_TIMEOUT_MS", 2000),
		},
		Migrate:  getEnvBool("MIGRATE", false),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
			Prefix:   getValue("REDIS_PREFIX", "redis", "prefix", "niceurl"),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "go_niceurl"),
		},
		Log: LogConfig{
			Level:  getValue("LOG_LEVEL", "log", "level", "info"),
			Format: getValue("LOG_FORMAT", "log", "format", "text"),
		},
		Site: SiteConfig{
			BaseURL:    getValue("SITE_BASE_URL", "site", "base_url", ""),
			DefaultURL: getValue("SITE_DEFAULT_URL", "site", "default_url", ""),
			Debug:      getValueBool("SITE_DEBUG", "site", "debug", false),
		},
		Router: RouterConfig{
			Enabled:            getValueBool("PLUGIN_ENABLED", "router", "enabled", true),
			CacheEnabled:       getValueBool("CACHE_ENABLED", "router", "caching", true),
			InversionEnabled:   getValueBool("INVERSION_ENABLED", "router", "inversion", true),
			CacheBackend:       getValue("CACHE_BACKEND", "router", "cache_backend", CacheBackendMemory),
			CacheSize:          getValueInt("CACHE_SIZE", "router", "cache_size", 10000),
			StrictPlaceholders: getValueBool("ROUTER_STRICT_PLACEHOLDERS", "router", "strict_placeholders", false),
			StrategyTimeoutMs:  getValueInt("ROUTER_STRATEGY_TIMEOUT_MS", "router", "strategy_timeout_ms", 2000),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish validates required fields and fills derived defaults
func (c *Config) finish() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("SITE_BASE_URL is required")
	}
	if c.Site.DefaultURL == "" {
		c.Site.DefaultURL = c.Site.BaseURL
	}
	switch c.Router.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Router.CacheBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "1" || value == "true"
	}
	return defaultValue
}
