// Package config provides configuration management for the dramaload service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the dramaload service.
type Config struct {
	// Telegram settings
	TelegramToken string
	AllowedUsers  []int64 // empty means everyone is allowed

	// Status server settings
	Port     int
	LogLevel string

	// Target site settings
	BaseURL string

	// Storage settings
	DBPath   string
	VideoDir string

	// Browser settings
	ChromePath string

	// Challenge solving settings
	ChallengeDeadline time.Duration // wall clock budget for the puzzle loop
	PollInterval      time.Duration // challenge record poll cadence
	ClickDelay        time.Duration // settle time after each grid click
	LinkWait          time.Duration // bounded probe for a direct link
	CheckboxWait      time.Duration // wait for the checkbox control
	FrameWait         time.Duration // wait for an iframe to attach
	SetupReloads      int           // reload attempts before giving up on setup
}

// Load creates a Config from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		TelegramToken:     getEnv("TELEGRAM_API_KEY", ""),
		AllowedUsers:      getEnvInt64List("ALLOWED_USERS"),
		Port:              getEnvInt("PORT", 8191),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		BaseURL:           getEnv("BASE_URL", "https://draplay2.pro"),
		DBPath:            getEnv("DB_PATH", "dramaload.db"),
		VideoDir:          getEnv("VIDEO_DIR", "videos"),
		ChromePath:        getEnv("CHROME_PATH", ""),
		ChallengeDeadline: getEnvDuration("CHALLENGE_DEADLINE", 100*time.Second),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 250*time.Millisecond),
		ClickDelay:        getEnvDuration("CLICK_DELAY", 250*time.Millisecond),
		LinkWait:          getEnvDuration("LINK_WAIT", 5*time.Second),
		CheckboxWait:      getEnvDuration("CHECKBOX_WAIT", 30*time.Second),
		FrameWait:         getEnvDuration("FRAME_WAIT", 60*time.Second),
		SetupReloads:      getEnvInt("SETUP_RELOADS", 5),
	}
}

// Allows reports whether the given user may issue commands.
func (c *Config) Allows(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvInt64List(key string) []int64 {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
