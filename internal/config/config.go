package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const minTokenSecretLen = 16

// Config holds the application configuration
type Config struct {
	DatabaseURL    string
	Port           string
	TokenSecret    string
	UTCOffset      time.Duration
	ScanRateLimit  int
	AllowedOrigins []string
	DevMode        bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           "3000",
		UTCOffset:      8 * time.Hour,
		ScanRateLimit:  30,
		AllowedOrigins: []string{"*"},
	}

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		user := u.User.Username()
		if user == "" {
			user = "(none)"
		}
		log.Printf("DB connect: host=%s db=%s user=%s", host, strings.TrimPrefix(u.Path, "/"), user)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// QR_TOKEN_SECRET signs session tokens (required)
	secret := os.Getenv("QR_TOKEN_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("QR_TOKEN_SECRET environment variable is required")
	}
	if len(secret) < minTokenSecretLen {
		return nil, fmt.Errorf("QR_TOKEN_SECRET must be at least %d bytes", minTokenSecretLen)
	}
	cfg.TokenSecret = secret

	if v := os.Getenv("UTC_OFFSET"); v != "" {
		offset, err := ParseUTCOffset(v)
		if err != nil {
			return nil, fmt.Errorf("invalid UTC_OFFSET: %w", err)
		}
		cfg.UTCOffset = offset
	}

	if v := os.Getenv("SCAN_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("SCAN_RATE_LIMIT must be a positive integer, got %q", v)
		}
		cfg.ScanRateLimit = n
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}

// ParseUTCOffset parses "+08:00", "-05:30", "+8" or "Z"
func ParseUTCOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "UTC" || s == "0" {
		return 0, nil
	}
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("offset %q must start with + or -", s)
	}
	sign := time.Duration(1)
	if s[0] == '-' {
		sign = -1
	}

	hoursPart, minutesPart, hasMinutes := strings.Cut(s[1:], ":")
	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours < 0 || hours > 14 {
		return 0, fmt.Errorf("offset %q has invalid hours", s)
	}
	minutes := 0
	if hasMinutes {
		minutes, err = strconv.Atoi(minutesPart)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("offset %q has invalid minutes", s)
		}
	}

	return sign * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute), nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
