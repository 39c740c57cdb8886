package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// App holds the runtime configuration of the client and the scanner daemon.
type App struct {
	Env            string        `yaml:"env"`
	APIBaseURL     string        `yaml:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Locale         string        `yaml:"locale"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`

	SessionBackend   string `yaml:"session_backend"`
	SessionDBPath    string `yaml:"session_db_path"`
	SessionKeyPrefix string `yaml:"session_key_prefix"`
	RedisAddr        string `yaml:"redis_addr"`
	RedisPassword    string `yaml:"redis_password"`

	ScannerHTTPPort   string        `yaml:"scanner_http_port"`
	ScannerSigningKey string        `yaml:"scanner_signing_key"`
	ScannerIssuer     string        `yaml:"scanner_issuer"`
	ScannerTokenTTL   time.Duration `yaml:"scanner_token_ttl"`
	ScannerAuth       bool          `yaml:"scanner_auth"`
	QueueBackend      string        `yaml:"queue_backend"`
	ScanQueueKey      string        `yaml:"scan_queue_key"`
	ScanCooldown      time.Duration `yaml:"scan_cooldown"`
	RateLimitPerMin   int           `yaml:"rate_limit_per_min"`

	CloudinaryURL    string `yaml:"cloudinary_url"`
	CloudinaryFolder string `yaml:"cloudinary_folder"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() App {
	return App{
		Env:               "dev",
		APIBaseURL:        "http://localhost:5000/api",
		RequestTimeout:    15 * time.Second,
		Locale:            "en",
		LogLevel:          "info",
		LogFormat:         "console",
		SessionBackend:    "sqlite",
		SessionDBPath:     defaultSessionPath(),
		SessionKeyPrefix:  "campusconnect:session",
		RedisAddr:         "localhost:6379",
		ScannerHTTPPort:   "8082",
		ScannerSigningKey: "dev-scanner-secret-change",
		ScannerIssuer:     "campusconnect-scanner",
		ScannerTokenTTL:   30 * 24 * time.Hour,
		ScannerAuth:       true,
		QueueBackend:      "memory",
		ScanQueueKey:      "campusconnect:scans",
		ScanCooldown:      3 * time.Second,
		RateLimitPerMin:   60,
		CloudinaryFolder:  "campusconnect/events",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CAMPUS_CONFIG, an optional .env file and finally the environment.
func Load() (App, error) {
	// .env is optional; variables may come from the real environment.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CAMPUS_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return App{}, err
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.APIBaseURL = strings.TrimRight(getEnv("CAMPUS_API_URL", cfg.APIBaseURL), "/")
	cfg.RequestTimeout = durationEnv("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.Locale = getEnv("LOCALE", cfg.Locale)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.SessionBackend = getEnv("SESSION_BACKEND", cfg.SessionBackend)
	cfg.SessionDBPath = getEnv("SESSION_DB_PATH", cfg.SessionDBPath)
	cfg.SessionKeyPrefix = getEnv("SESSION_KEY_PREFIX", cfg.SessionKeyPrefix)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.ScannerHTTPPort = getEnv("SCANNER_HTTP_PORT", cfg.ScannerHTTPPort)
	cfg.ScannerSigningKey = getEnv("SCANNER_SIGNING_KEY", cfg.ScannerSigningKey)
	cfg.ScannerIssuer = getEnv("SCANNER_ISSUER", cfg.ScannerIssuer)
	cfg.ScannerTokenTTL = durationEnv("SCANNER_TOKEN_TTL", cfg.ScannerTokenTTL)
	cfg.ScannerAuth = boolEnv("SCANNER_AUTH", cfg.ScannerAuth)
	cfg.QueueBackend = getEnv("QUEUE_BACKEND", cfg.QueueBackend)
	cfg.ScanQueueKey = getEnv("SCAN_QUEUE_KEY", cfg.ScanQueueKey)
	cfg.ScanCooldown = durationEnv("SCAN_COOLDOWN", cfg.ScanCooldown)
	cfg.RateLimitPerMin = intEnv("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMin)
	cfg.CloudinaryURL = getEnv("CLOUDINARY_URL", cfg.CloudinaryURL)
	cfg.CloudinaryFolder = getEnv("CLOUDINARY_FOLDER", cfg.CloudinaryFolder)

	if err := cfg.validate(); err != nil {
		return App{}, err
	}
	return cfg, nil
}

// Production reports whether the app runs with production settings.
func (c App) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

func (c *App) validate() error {
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("config: CAMPUS_API_URL invalid (%q): %w", c.APIBaseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: CAMPUS_API_URL invalid (%q): missing scheme or host", c.APIBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: REQUEST_TIMEOUT must be positive")
	}
	switch c.SessionBackend {
	case "memory", "redis":
	case "sqlite":
		if strings.TrimSpace(c.SessionDBPath) == "" {
			return errors.New("config: SESSION_DB_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.QueueBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown QUEUE_BACKEND %q", c.QueueBackend)
	}
	if c.Production() && c.ScannerSigningKey == Defaults().ScannerSigningKey {
		return errors.New("config: SCANNER_SIGNING_KEY must be set in production")
	}
	return nil
}

func loadFile(path string, cfg *App) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".campusconnect", "session.db")
	}
	return filepath.Join(home, ".campusconnect", "session.db")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Dur("fallback", fallback).Msg("invalid duration, using fallback")
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Warn().Str("key", key).Bool("fallback", fallback).Msg("invalid bool, using fallback")
			return fallback
		}
		return parsed
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Warn().Str("key", key).Int("fallback", fallback).Msg("invalid int, using fallback")
			return fallback
		}
		return parsed
	}
	return fallback
}
