package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig configures a dashboard client: the remote gateway, the local
// snapshot cache and the presence loop timings.
type ClientConfig struct {
	APIBaseURL      string        `yaml:"api_base_url"`
	Token           string        `yaml:"token"`
	UserID          string        `yaml:"user_id"`
	DisplayName     string        `yaml:"display_name"`
	Color           string        `yaml:"color"`
	CachePath       string        `yaml:"cache_path"`
	CacheKey        string        `yaml:"cache_key"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	FrameInterval   time.Duration `yaml:"frame_interval"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	PeerTTL         time.Duration `yaml:"peer_ttl"`
}

// LoadClientConfig builds a ClientConfig from environment variables.
func LoadClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:      GetString("DESKPULSE_API_URL", "http://localhost:4000"),
		Token:           GetString("DESKPULSE_TOKEN", ""),
		UserID:          GetString("DESKPULSE_USER", ""),
		DisplayName:     GetString("DESKPULSE_DISPLAY_NAME", ""),
		Color:           GetString("DESKPULSE_COLOR", "#4f46e5"),
		CachePath:       GetString("DESKPULSE_CACHE", ""),
		CacheKey:        GetString("DESKPULSE_CACHE_KEY", ""),
		FetchTimeout:    GetDuration("DESKPULSE_FETCH_TIMEOUT", 15*time.Second),
		WriteTimeout:    GetDuration("DESKPULSE_WRITE_TIMEOUT", 10*time.Second),
		FrameInterval:   GetDuration("DESKPULSE_FRAME_INTERVAL", 16*time.Millisecond),
		PublishInterval: GetDuration("DESKPULSE_PUBLISH_INTERVAL", 50*time.Millisecond),
		SweepInterval:   GetDuration("DESKPULSE_SWEEP_INTERVAL", time.Second),
		PeerTTL:         GetDuration("DESKPULSE_PEER_TTL", 5*time.Second),
	}
}

// MergeProfile overlays the non-empty fields of a YAML profile file onto cfg.
// A missing file is not an error.
func MergeProfile(cfg ClientConfig, path string) (ClientConfig, error) {
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read profile: %w", err)
	}
	var profile ClientConfig
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return cfg, fmt.Errorf("parse profile %s: %w", path, err)
	}
	overlayString(&cfg.APIBaseURL, profile.APIBaseURL)
	overlayString(&cfg.Token, profile.Token)
	overlayString(&cfg.UserID, profile.UserID)
	overlayString(&cfg.DisplayName, profile.DisplayName)
	overlayString(&cfg.Color, profile.Color)
	overlayString(&cfg.CachePath, profile.CachePath)
	overlayString(&cfg.CacheKey, profile.CacheKey)
	overlayDuration(&cfg.FetchTimeout, profile.FetchTimeout)
	overlayDuration(&cfg.WriteTimeout, profile.WriteTimeout)
	overlayDuration(&cfg.FrameInterval, profile.FrameInterval)
	overlayDuration(&cfg.PublishInterval, profile.PublishInterval)
	overlayDuration(&cfg.SweepInterval, profile.SweepInterval)
	overlayDuration(&cfg.PeerTTL, profile.PeerTTL)
	return cfg, nil
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
