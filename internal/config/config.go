package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the service.
type Config struct {
	TelegramToken string
	DatabaseURL   string

	// Remote mirror document store; empty URL disables the outbox drainer.
	RemoteMirrorURL   string
	RemoteMirrorToken string
	SyncInterval      time.Duration

	// LLM endpoint for the assistant; empty key disables AI features.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	SummaryTime string // default daily summary time, "HH:MM"
	Timezone    string // default IANA timezone for new users
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:     strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RemoteMirrorURL:   strings.TrimSpace(os.Getenv("REMOTE_MIRROR_URL")),
		RemoteMirrorToken: strings.TrimSpace(os.Getenv("REMOTE_MIRROR_TOKEN")),
		SyncInterval:      parseMinutes(strings.TrimSpace(os.Getenv("SYNC_INTERVAL_MINUTES"))),
		LLMBaseURL:        strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
		LLMAPIKey:         strings.TrimSpace(os.Getenv("LLM_API_KEY")),
		LLMModel:          strings.TrimSpace(os.Getenv("LLM_MODEL")),
		SummaryTime:       strings.TrimSpace(os.Getenv("SUMMARY_TIME")),
		Timezone:          strings.TrimSpace(os.Getenv("TIMEZONE")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "healthforge.db"
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 2 * time.Minute
	}
	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gemini-2.0-flash"
	}
	if cfg.SummaryTime == "" {
		cfg.SummaryTime = "08:00"
	}
	if err := validateClockTime(cfg.SummaryTime); err != nil {
		return cfg, fmt.Errorf("SUMMARY_TIME: %w", err)
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

// MirrorEnabled reports whether the remote mirror subsystem is configured.
func (c Config) MirrorEnabled() bool {
	return c.RemoteMirrorURL != ""
}

// AssistantEnabled reports whether the LLM assistant is configured.
func (c Config) AssistantEnabled() bool {
	return c.LLMAPIKey != ""
}

func parseMinutes(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

func validateClockTime(raw string) error {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute in %q", raw)
	}
	return nil
}
