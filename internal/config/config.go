package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultPersona steers the text-generation collaborator. Override with the
// PERSONA environment variable.
const DefaultPersona = "You are a friendly, respectful AI companion for casual conversation. " +
	"Keep the dialogue light, show empathy, never push, never sell, never ask for personal data. " +
	"Answer briefly and naturally, like a person would. Do not repeat the other person's message verbatim. " +
	"If the user goes quiet, a gentle check-in on a later day is fine, never more than that."

// Config holds runtime configuration loaded from the environment.
type Config struct {
	TelegramToken string
	OpenAIToken   string
	OpenAIBaseURL string
	OpenAIModel   string
	DBConnString  string
	SQLitePath    string

	Timezone         string
	QuietHoursStart  int // 0-23, wrap-around permitted
	QuietHoursEnd    int // 0-23
	MaxDailyMessages int // proactive sends per user per local day
	CadenceMinDays   int
	CadenceMaxDays   int
	RepetitionWindow int
	Similarity       string // "exact" or "jaccard"
	DueScanInterval  time.Duration
	Persona          string
}

// FromEnv loads configuration from environment variables, applying defaults
// and validating the policy parameters. Tokens are optional: without
// TELEGRAM_TOKEN the bot runs on the console adapter, without OPENAI_TOKEN it
// uses the offline responder.
func FromEnv() (*Config, error) {
	c := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		OpenAIToken:      os.Getenv("OPENAI_TOKEN"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		DBConnString:     os.Getenv("DATABASE_URL"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		Timezone:         os.Getenv("TIMEZONE"),
		QuietHoursStart:  getenvInt("QUIET_HOURS_START", 22),
		QuietHoursEnd:    getenvInt("QUIET_HOURS_END", 8),
		MaxDailyMessages: getenvInt("MAX_DAILY_MESSAGES_PER_USER", 3),
		CadenceMinDays:   getenvInt("CADENCE_MIN_DAYS", 1),
		CadenceMaxDays:   getenvInt("CADENCE_MAX_DAYS", 3),
		RepetitionWindow: getenvInt("REPETITION_WINDOW", 10),
		Similarity:       os.Getenv("POLICY_SIMILARITY"),
		DueScanInterval:  time.Duration(getenvInt("DUE_SCAN_INTERVAL_SEC", 300)) * time.Second,
		Persona:          os.Getenv("PERSONA"),
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "companion.db"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Berlin"
	}
	if c.Similarity == "" {
		c.Similarity = "exact"
	}
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.QuietHoursStart < 0 || c.QuietHoursStart > 23 {
		return fmt.Errorf("QUIET_HOURS_START must be 0-23, got %d", c.QuietHoursStart)
	}
	if c.QuietHoursEnd < 0 || c.QuietHoursEnd > 23 {
		return fmt.Errorf("QUIET_HOURS_END must be 0-23, got %d", c.QuietHoursEnd)
	}
	if c.QuietHoursStart == c.QuietHoursEnd {
		return fmt.Errorf("quiet hours %d-%d would block the whole day", c.QuietHoursStart, c.QuietHoursEnd)
	}
	if c.MaxDailyMessages < 0 {
		return fmt.Errorf("MAX_DAILY_MESSAGES_PER_USER must be >= 0, got %d", c.MaxDailyMessages)
	}
	if c.CadenceMinDays < 1 {
		return fmt.Errorf("CADENCE_MIN_DAYS must be >= 1, got %d", c.CadenceMinDays)
	}
	if c.CadenceMaxDays < c.CadenceMinDays {
		return fmt.Errorf("cadence bounds invalid: min %d > max %d", c.CadenceMinDays, c.CadenceMaxDays)
	}
	if c.RepetitionWindow < 1 {
		return fmt.Errorf("REPETITION_WINDOW must be >= 1, got %d", c.RepetitionWindow)
	}
	if c.Similarity != "exact" && c.Similarity != "jaccard" {
		return fmt.Errorf("POLICY_SIMILARITY must be exact or jaccard, got %q", c.Similarity)
	}
	if c.DueScanInterval <= 0 {
		return fmt.Errorf("DUE_SCAN_INTERVAL_SEC must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	return nil
}

func getenvInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
