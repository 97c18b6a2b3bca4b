package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort        string        `json:"AppPort" env:"APP_PORT"`
	JWTSecret      string        `json:"JWTSecret" env:"JWT_SECRET"`
	TokenTTL       time.Duration `json:"-" env:"TOKEN_TTL"`
	TokenTTLHours  int           `json:"TokenTTLHours" env:"TOKEN_TTL_HOURS"`
	AllowedOrigins []string      `json:"AllowedOrigins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	AdminUsernames []string      `json:"AdminUsernames" env:"ADMIN_USERNAMES" envSeparator:","`
	// Timezone names the calendar used for day boundaries and streaks, e.g. "Asia/Shanghai".
	Timezone           string `json:"Timezone" env:"APP_TIMEZONE"`
	RateLimitPerMinute int    `json:"RateLimitPerMinute" env:"RATE_LIMIT_PER_MINUTE"`
	// ChallengeExpiryCron is a 6-field cron spec (with seconds) for closing ended challenges.
	ChallengeExpiryCron string `json:"ChallengeExpiryCron" env:"CHALLENGE_EXPIRY_CRON"`
	// Gin framework configuration
	GinMode string `json:"GinMode" env:"GIN_MODE"`
	GinPath string `json:"GinPath" env:"GIN_PATH"`
	// Database: DBDriver is "mysql" or "sqlite"
	DBDriver    string `json:"DBDriver" env:"DB_DRIVER"`
	DatabaseURI string `json:"DatabaseURI" env:"DATABASE_URI"`
	DBHost      string `json:"DBHost" env:"DB_HOST"`
	DBPort      string `json:"DBPort" env:"DB_PORT"`
	DBUser      string `json:"DBUser" env:"DB_USER"`
	DBPassword  string `json:"DBPassword" env:"DB_PASSWORD"`
	DBName      string `json:"DBName" env:"DB_NAME"`
	// Redis for caching and token revocation; empty host disables it
	RedisHost     string `json:"RedisHost" env:"REDIS_HOST"`
	RedisPort     int    `json:"RedisPort" env:"REDIS_PORT"`
	RedisDB       int    `json:"RedisDB" env:"REDIS_DB"`
	RedisPassword string `json:"RedisPassword" env:"REDIS_PASSWORD"`
	// Logging configuration
	LogLevel      string `json:"LogLevel" env:"LOG_LEVEL"`
	LogPath       string `json:"LogPath" env:"LOG_PATH"`
	LogMaxSizeMB  int    `json:"LogMaxSizeMB" env:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `json:"LogMaxBackups" env:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `json:"LogMaxAgeDays" env:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `json:"LogCompress" env:"LOG_COMPRESS"`
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	c, err := Read(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	cfg = c
	loaded = true
	return cfg
}

// Read builds a configuration with precedence config file -> defaults -> environment.
// A missing file is not an error.
func Read(path string) (AppConfig, error) {
	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&c)
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Duration(c.TokenTTLHours) * time.Hour
	}
	return c, nil
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tests and embedding programs.
func Set(c AppConfig) {
	applyDefaults(&c)
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Duration(c.TokenTTLHours) * time.Hour
	}
	cfg = c
	loaded = true
}

// Location resolves Timezone, falling back to the process local zone.
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, using local: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

// IsAdmin checks whether given username is configured as an admin (case-insensitive).
func (c AppConfig) IsAdmin(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

// loadJSONConfig reads JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.ChallengeExpiryCron == "" {
		c.ChallengeExpiryCron = "0 */5 * * * *"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "beme"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}
