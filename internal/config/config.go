// Package config loads service settings from the environment (optionally
// seeded from a .env file) and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/waypoint-tourism/directory/internal/onboarding"
)

// Env holds the settings read from environment variables.
type Env struct {
	SupabaseURL        string `env:"SUPABASE_URL,required"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY,required"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	JWTSecret          string `env:"SUPABASE_JWT_SECRET"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	DatabaseURL   string `env:"DATABASE_URL"`

	HTTPAddr   string `env:"HTTP_ADDR,default=:8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=json"`
	ConfigFile string `env:"DIRECTORY_CONFIG"`
}

// CORS lists the browser origins allowed to call the API.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimit is a token bucket per user or client address.
type RateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Cache tunes the profile cache.
type Cache struct {
	TTL       time.Duration `yaml:"ttl"`
	Namespace string        `yaml:"namespace"`
}

// Session tunes token refresh in long-running clients.
type Session struct {
	RefreshSchedule string        `yaml:"refresh_schedule"`
	RefreshMargin   time.Duration `yaml:"refresh_margin"`
}

// File is the optional YAML configuration.
type File struct {
	Storage   onboarding.Config `yaml:"storage"`
	CORS      CORS              `yaml:"cors"`
	RateLimit RateLimit         `yaml:"rate_limit"`
	Cache     Cache             `yaml:"cache"`
	Session   Session           `yaml:"session"`
}

// Config is the complete configuration.
type Config struct {
	Env
	File
}

// DefaultFile returns the settings used when no YAML file is given.
func DefaultFile() File {
	return File{
		Storage:   onboarding.DefaultConfig(),
		CORS:      CORS{AllowedOrigins: []string{"*"}},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Cache:     Cache{TTL: 5 * time.Minute, Namespace: "directory"},
		Session:   Session{RefreshSchedule: "@every 30s", RefreshMargin: time.Minute},
	}
}

// Load reads envFiles (missing files are ignored; none means ".env"), decodes
// the environment and merges the YAML file named by DIRECTORY_CONFIG.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var env Env
	if err := envdecode.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	env.SupabaseURL = strings.TrimRight(env.SupabaseURL, "/")

	file := DefaultFile()
	if env.ConfigFile != "" {
		loaded, err := LoadFileFromPath(env.ConfigFile)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	cfg := &Config{Env: env, File: file}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFileFromPath reads a YAML file over DefaultFile, so absent keys keep
// their defaults.
func LoadFileFromPath(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	file := DefaultFile()
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &file, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.SupabaseURL, "http://") && !strings.HasPrefix(c.SupabaseURL, "https://") {
		return fmt.Errorf("SUPABASE_URL must be an http(s) URL, got %q", c.SupabaseURL)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if c.Storage.MaxFileSize < 0 {
		return errors.New("storage.max_file_size must not be negative")
	}
	return nil
}

// RedisAddrs splits REDIS_ADDR on commas for cluster setups.
func (c *Config) RedisAddrs() []string {
	var addrs []string
	for _, a := range strings.Split(c.RedisAddr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}
