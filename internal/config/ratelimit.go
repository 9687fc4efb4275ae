package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig describes one token bucket.  The HTTP-wide limiter and the
// evidence-submission limiter are separate buckets loaded from different
// env prefixes.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig loads the request-level bucket from RATE_LIMIT_*.
func LoadRateLimitConfig() RateLimitConfig {
	return loadBucket("RATE_LIMIT", RateLimitConfig{
		Enabled:        true,
		Capacity:       60,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_user_route",
		Prefix:         "rl",
	})
}

// LoadEvidenceRateLimitConfig loads the per-holder evidence submission
// bucket from EVIDENCE_RATE_LIMIT_*.  Defaults allow a burst of five
// submissions and one more per minute.
func LoadEvidenceRateLimitConfig() RateLimitConfig {
	return loadBucket("EVIDENCE_RATE_LIMIT", RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            time.Hour,
		KeyStrategy:    "holder_ip",
		Prefix:         "rl:evidence",
	})
}

func loadBucket(prefix string, def RateLimitConfig) RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        envBool(prefix+"_ENABLED", def.Enabled),
		Capacity:       envInt(prefix+"_CAPACITY", def.Capacity),
		RefillTokens:   envInt(prefix+"_REFILL_TOKENS", def.RefillTokens),
		RefillInterval: envDur(prefix+"_REFILL_INTERVAL", def.RefillInterval),
		TTL:            envDur(prefix+"_TTL", def.TTL),
		KeyStrategy:    envStr(prefix+"_KEY_STRATEGY", def.KeyStrategy),
		Prefix:         envStr(prefix+"_PREFIX", def.Prefix),
		Debug:          envBool(prefix+"_DEBUG", false),
	}
	if b := envInt(prefix+"_BURST", -1); b > 0 {
		c.Capacity = b
	}
	if every := envDur(prefix+"_REFILL_EVERY", 0); every > 0 {
		c.RefillTokens = 1
		c.RefillInterval = every
	}
	return c.normalised()
}

func (c RateLimitConfig) normalised() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
