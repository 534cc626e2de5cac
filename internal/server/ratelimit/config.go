package ratelimit

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tier limits one group of endpoints. Requests from one client to endpoints of
// the same tier share a bucket.
type Tier struct {
	Name   string
	Method string
	// Path matches exactly, or as a prefix when it ends with "/".
	Path   string
	Limit  int // requests per Window; 0 means unlimited
	Window time.Duration
	Burst  int // bucket capacity; Limit when 0
}

func (t Tier) matches(method, path string) bool {
	if t.Method != "" && t.Method != method {
		return false
	}
	if strings.HasSuffix(t.Path, "/") {
		return strings.HasPrefix(path, t.Path)
	}
	return t.Path == path
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// Default applies to requests no tier matches.
	Default         Tier
	Tiers           []Tier
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL   time.Duration
	Whitelist map[string]bool
	Blacklist map[string]bool
}

// DefaultTiers returns the endpoint tiers of the job API. Running a job holds
// a browser for its whole length, so job submission is the scarce resource.
func DefaultTiers(jobsPerHour int) []Tier {
	return []Tier{
		{Name: "probe", Method: http.MethodGet, Path: "/health"},
		{Name: "probe", Method: http.MethodGet, Path: "/metrics"},
		{Name: "jobs", Method: http.MethodPost, Path: "/jobs", Limit: jobsPerHour, Window: time.Hour, Burst: 5},
		{Name: "jobs", Method: http.MethodPost, Path: "/jobs/", Limit: jobsPerHour, Window: time.Hour, Burst: 5},
		{Name: "reports", Method: http.MethodDelete, Path: "/reports/", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// LoadConfig loads rate limiting configuration from RATE_LIMIT_* environment variables.
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	defaultLimit := getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 600)
	return &Config{
		Enabled: true,
		Default: Tier{
			Name:   "default",
			Limit:  defaultLimit,
			Window: getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
			Burst:  defaultLimit,
		},
		Tiers:           DefaultTiers(getEnvInt("RATE_LIMIT_JOBS_PER_HOUR", 60)),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		IdleTTL:         time.Hour,
		Whitelist:       parseIPList(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(os.Getenv("RATE_LIMIT_BLACKLIST")),
	}
}

// Match returns the tier for a request, or the default tier.
func (c *Config) Match(method, path string) Tier {
	for _, tier := range c.Tiers {
		if tier.matches(method, path) {
			return tier
		}
	}
	return c.Default
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
