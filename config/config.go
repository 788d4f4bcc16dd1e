// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (media host, bot token), use ValidateMediaReady / ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Cloudinary
	CloudName       string
	APIKey          string
	APISecret       string
	UploadTransform string

	// Telegram bot
	BotToken string

	// Destinations: key (e.g. "good", "b2b") -> chat id
	Channels map[string]int64

	// HTTP
	HTTPAddr string
	BaseURL  string

	// Storage
	DataDir        string
	MaxUploadBytes int64

	// Behavior
	UploadTimeout time.Duration
	TitleRequired bool
	PromptTTL     time.Duration
	PendingTTL    time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if media or bot
// credentials are missing; use the Validate* helpers when a feature requires them.
// Destination channels come from every CHANNEL_<KEY> variable: the destination key is
// lower(<KEY>) and the value must be a chat id (e.g. CHANNEL_GOOD=-1001234567890).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.CloudName = os.Getenv("CLOUD_NAME")
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.APISecret = os.Getenv("API_SECRET")
	cfg.UploadTransform = os.Getenv("UPLOAD_TRANSFORM")
	if cfg.UploadTransform == "" {
		// bounding box the provider applies to the stored video
		cfg.UploadTransform = "c_limit,h_600,w_800"
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")

	cfg.Channels = map[string]int64{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "CHANNEL_") {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, "CHANNEL_"))
		if key == "" || value == "" {
			continue
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s (chat id): %w", name, err)
		}
		cfg.Channels[key] = id
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "uploads"
	}

	cfg.MaxUploadBytes = 512 << 20
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %q", v)
		}
		cfg.MaxUploadBytes = n
	}

	cfg.UploadTimeout = envDuration("UPLOAD_TIMEOUT", 60*time.Second)
	cfg.PromptTTL = envDuration("PROMPT_TTL", 10*time.Minute)
	cfg.PendingTTL = envDuration("PENDING_TTL", 15*time.Minute)

	if v := os.Getenv("TITLE_REQUIRED"); v == "1" || strings.EqualFold(v, "true") {
		cfg.TitleRequired = true
	}

	return cfg, nil
}

// ValidateMediaReady checks required fields for uploads to the media host.
func (c *Config) ValidateMediaReady() error {
	if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("missing cloudinary env: require CLOUD_NAME, API_KEY, API_SECRET")
	}
	return nil
}

// ValidateBotReady checks required fields when the chat gateway is enabled.
func (c *Config) ValidateBotReady() error {
	if c.BotToken == "" {
		return fmt.Errorf("missing bot env: require BOT_TOKEN")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("no destination channels configured: set CHANNEL_<KEY> variables")
	}
	return nil
}

func envDuration(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
