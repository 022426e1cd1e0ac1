package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	APIBaseURL string `envconfig:"API_BASE_URL" default:"https://api.bitchute.com/api"`
	WebBaseURL string `envconfig:"WEB_BASE_URL" default:"https://www.bitchute.com"`

	RateLimit       time.Duration `envconfig:"RATE_LIMIT" default:"500ms"`
	EnrichRateLimit time.Duration `envconfig:"ENRICH_RATE_LIMIT" default:"100ms"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	DBPath         string `envconfig:"DB_PATH" default:"archiver.db"`
	TokenCachePath string `envconfig:"TOKEN_CACHE_PATH"`
	ProbeAttempts  int    `envconfig:"PROBE_ATTEMPTS" default:"3"`

	DownloadDir     string `envconfig:"DOWNLOAD_DIR" required:"true"`
	ThumbnailFolder string `envconfig:"THUMBNAIL_FOLDER" default:"thumbnails"`
	VideoFolder     string `envconfig:"VIDEO_FOLDER" default:"videos"`
	ForceRedownload bool   `envconfig:"FORCE_REDOWNLOAD" default:"false"`
	MaxDownloads    int    `envconfig:"MAX_DOWNLOADS" default:"3"`
	DBFlushEvery    int    `envconfig:"DB_FLUSH_EVERY" default:"25"`

	MaxWorkers int `envconfig:"MAX_WORKERS" default:"5"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"5m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
