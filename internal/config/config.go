package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/pocketledger/syncengine/internal/models"
)

// Config holds all application configuration
type Config struct {
	APIBaseURL   string   `json:"apiBaseUrl"`
	DatabasePath string   `json:"databasePath"`
	AccessToken  string   `json:"accessToken"`
	UserID       string   `json:"userId"`
	OAuth        OAuth    `json:"oauth"`
	Device       Device   `json:"device"`
	Sync         Sync     `json:"sync"`
	Control      Control  `json:"control"`
	Security     Security `json:"security"`
}

// OAuth configures refreshing bearer credentials. When RefreshToken is
// empty the static AccessToken is used instead.
type OAuth struct {
	TokenURL     string `json:"tokenUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

// UseOAuth returns true if credentials should be refreshed through OAuth
func (c *Config) UseOAuth() bool {
	return c.OAuth.RefreshToken != "" && c.OAuth.TokenURL != ""
}

// Device identifies this install to the backend
type Device struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
}

// Sync configuration for the sync engine
type Sync struct {
	DebounceMS            int    `json:"debounceMs"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	ResetWaitSeconds      int    `json:"resetWaitSeconds"`
	Schedule              string `json:"schedule"`
}

// Control configuration for the local control API
type Control struct {
	Address string `json:"address"`
}

// Security configuration
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// Platform returns the parsed device platform
func (c *Config) Platform() (models.Platform, error) {
	return models.ParsePlatform(c.Device.Platform)
}

func (s Sync) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

func (s Sync) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

func (s Sync) ResetWait() time.Duration {
	return time.Duration(s.ResetWaitSeconds) * time.Second
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		APIBaseURL:   "http://localhost:3000",
		DatabasePath: "pocketledger.db",
		Device: Device{
			Platform: string(models.PlatformWeb),
			Name:     "pocketledger",
		},
		Sync: Sync{
			DebounceMS:            2000,
			RequestTimeoutSeconds: 30,
			ResetWaitSeconds:      5,
			Schedule:              "@every 15m",
		},
		Control: Control{
			Address: "127.0.0.1:7420",
		},
		Security: Security{
			APIKey:       "",
			APIKeyHeader: "X-API-Key",
		},
	}
}

// Load loads configuration from file or environment. A .env file in the
// working directory is read first; variables already set win over it.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if url := os.Getenv("API_BASE_URL"); url != "" {
		cfg.APIBaseURL = url
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if token := os.Getenv("ACCESS_TOKEN"); token != "" {
		cfg.AccessToken = token
	}
	if userID := os.Getenv("USER_ID"); userID != "" {
		cfg.UserID = userID
	}
	if tokenURL := os.Getenv("OAUTH_TOKEN_URL"); tokenURL != "" {
		cfg.OAuth.TokenURL = tokenURL
	}
	if clientID := os.Getenv("OAUTH_CLIENT_ID"); clientID != "" {
		cfg.OAuth.ClientID = clientID
	}
	if secret := os.Getenv("OAUTH_CLIENT_SECRET"); secret != "" {
		cfg.OAuth.ClientSecret = secret
	}
	if refresh := os.Getenv("OAUTH_REFRESH_TOKEN"); refresh != "" {
		cfg.OAuth.RefreshToken = refresh
	}
	if platform := os.Getenv("DEVICE_PLATFORM"); platform != "" {
		cfg.Device.Platform = platform
	}
	if name := os.Getenv("DEVICE_NAME"); name != "" {
		cfg.Device.Name = name
	}

	// Sync engine configuration
	if v := envInt("SYNC_DEBOUNCE_MS"); v > 0 {
		cfg.Sync.DebounceMS = v
	}
	if v := envInt("SYNC_REQUEST_TIMEOUT_SECONDS"); v > 0 {
		cfg.Sync.RequestTimeoutSeconds = v
	}
	if v := envInt("SYNC_RESET_WAIT_SECONDS"); v > 0 {
		cfg.Sync.ResetWaitSeconds = v
	}
	if schedule, ok := os.LookupEnv("SYNC_SCHEDULE"); ok {
		cfg.Sync.Schedule = schedule
	}

	if addr := os.Getenv("CONTROL_ADDRESS"); addr != "" {
		cfg.Control.Address = addr
	}
	if apiKey := os.Getenv("CONTROL_API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}

	if _, err := cfg.Platform(); err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
