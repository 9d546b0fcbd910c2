package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the warden agent. Options are fixed
// for the process lifetime.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Browser management
	ManageBrowser bool
	ProfileDir    string
	StartURL      string

	// Target site matching
	TargetSiteSuffix string
	TabURLFilter     string
	WorkerScriptHint string

	// Platform endpoints
	GQLEndpoint   string
	UsherEndpoint string
	ClientID      string

	// Ad handling behavior
	StripAdSegments             bool
	NotifyAdsWatched            bool
	NotifyAdsWatchedMinRequests bool
	ShowAdBanner                bool
	AdSignifier                 string
	LiveSignifier               string

	// Player identity parameters
	BackupPlayerType      string
	BackupPlatform        string
	RegularPlayerType     string
	AccessTokenPlayerType string

	// Local observability API
	APIAddr string

	// Logging
	LogLevel string
	LogFile  string

	// Optional push notifications, disabled when empty
	NtfyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:                  getEnvOrDefault("WARDEN_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:                     getEnvIntOrDefault("WARDEN_CDP_PORT", 9222),
		ManageBrowser:               getEnvBoolOrDefault("WARDEN_MANAGE_BROWSER", false),
		ProfileDir:                  getEnvOrDefault("WARDEN_PROFILE_DIR", "./warden_profile"),
		StartURL:                    getEnvOrDefault("WARDEN_START_URL", "https://www.twitch.tv"),
		TargetSiteSuffix:            getEnvOrDefault("WARDEN_TARGET_SITE_SUFFIX", "twitch.tv"),
		TabURLFilter:                getEnvOrDefault("WARDEN_TAB_URL_FILTER", "twitch.tv"),
		WorkerScriptHint:            getEnvOrDefault("WARDEN_WORKER_SCRIPT_HINT", "wasmworker"),
		GQLEndpoint:                 getEnvOrDefault("WARDEN_GQL_ENDPOINT", "https://gql.twitch.tv/gql"),
		UsherEndpoint:               getEnvOrDefault("WARDEN_USHER_ENDPOINT", "https://usher.ttvnw.net"),
		ClientID:                    getEnvOrDefault("WARDEN_CLIENT_ID", "kimne78kx3ncx6brgo4mv6wki5h1ko"),
		StripAdSegments:             getEnvBoolOrDefault("WARDEN_STRIP_AD_SEGMENTS", true),
		NotifyAdsWatched:            getEnvBoolOrDefault("WARDEN_NOTIFY_ADS_WATCHED", false),
		NotifyAdsWatchedMinRequests: getEnvBoolOrDefault("WARDEN_NOTIFY_ADS_WATCHED_MIN_REQUESTS", false),
		ShowAdBanner:                getEnvBoolOrDefault("WARDEN_SHOW_AD_BANNER", true),
		AdSignifier:                 getEnvOrDefault("WARDEN_AD_SIGNIFIER", "stitched-ad"),
		LiveSignifier:               getEnvOrDefault("WARDEN_LIVE_SIGNIFIER", ",live"),
		BackupPlayerType:            getEnvOrDefault("WARDEN_BACKUP_PLAYER_TYPE", "autoplay"),
		BackupPlatform:              getEnvOrDefault("WARDEN_BACKUP_PLATFORM", "ios"),
		RegularPlayerType:           getEnvOrDefault("WARDEN_REGULAR_PLAYER_TYPE", "site"),
		AccessTokenPlayerType:       getEnvOrDefault("WARDEN_ACCESS_TOKEN_PLAYER_TYPE", ""),
		APIAddr:                     getEnvOrDefault("WARDEN_API_ADDR", "127.0.0.1:8585"),
		LogLevel:                    getEnvOrDefault("WARDEN_LOG_LEVEL", "info"),
		LogFile:                     getEnvOrDefault("WARDEN_LOG_FILE", "logs/warden.log"),
		NtfyEndpoint:                getEnvOrDefault("WARDEN_NTFY_ENDPOINT", ""),
	}

	if cfg.AdSignifier == "" {
		return nil, fmt.Errorf("WARDEN_AD_SIGNIFIER must not be empty")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("WARDEN_CLIENT_ID must not be empty")
	}

	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
