package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Trakt      TraktConfig      `yaml:"trakt"`
	Tmdb       TmdbConfig       `yaml:"tmdb"`
	Sync       SyncConfig       `yaml:"sync"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TraktConfig struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	TokenURL     string `yaml:"token_url"`
}

type TmdbConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	RateLimit         int    `yaml:"rate_limit"`
	RateWindowSeconds int    `yaml:"rate_window_seconds"`
}

// SyncConfig tunes the job queue loop and retry policy.
type SyncConfig struct {
	MaxRetries         int           `yaml:"max_retries"`
	InitialDelay       time.Duration `yaml:"initial_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	BackoffFactor      float64       `yaml:"backoff_factor"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	Concurrency        int           `yaml:"concurrency"`
	ActivityInterval   time.Duration `yaml:"activity_interval"`
	ImageRefreshMaxAge time.Duration `yaml:"image_refresh_max_age"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; the YAML may reference its variables.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Trakt.ClientID == "" || c.Trakt.ClientID == "YOUR_CLIENT_ID_HERE" {
		return errors.New("trakt client id is required")
	}

	if c.Sync.BackoffFactor < 0 {
		return errors.New("sync backoff factor must be positive")
	}

	if c.Sync.Concurrency < 0 {
		return errors.New("sync concurrency must be positive")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Trakt.BaseURL == "" {
		c.Trakt.BaseURL = "https://api.trakt.tv"
	}
	if c.Trakt.TokenURL == "" {
		c.Trakt.TokenURL = c.Trakt.BaseURL + "/oauth/token"
	}
	if c.Tmdb.BaseURL == "" {
		c.Tmdb.BaseURL = "https://api.themoviedb.org/3"
	}
	if c.Tmdb.RateLimit == 0 {
		c.Tmdb.RateLimit = 35
	}
	if c.Tmdb.RateWindowSeconds == 0 {
		c.Tmdb.RateWindowSeconds = 10
	}

	// Sync defaults
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = 3
	}
	if c.Sync.InitialDelay == 0 {
		c.Sync.InitialDelay = 2 * time.Second
	}
	if c.Sync.MaxDelay == 0 {
		c.Sync.MaxDelay = time.Minute
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = 2 * time.Second
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 1
	}
	if c.Sync.ActivityInterval == 0 {
		c.Sync.ActivityInterval = 15 * time.Minute
	}
	if c.Sync.ImageRefreshMaxAge == 0 {
		c.Sync.ImageRefreshMaxAge = 7 * 24 * time.Hour
	}

	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
