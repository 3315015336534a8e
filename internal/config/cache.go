package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// CacheConfig controls the Redis response cache on the read surface
// (the room board and waitlist listings).  Methods holds the HTTP
// methods eligible for caching, upper-cased.  KeyStrategy selects
// which request parts feed the cache key.  Bodies larger than
// MaxBodyBytes are passed through uncached.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* environment variables, falling back
// to a 30-second GET cache keyed on route and query string.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      getenv("CACHE_ENABLED", "true") == "true",
        Methods:      parseMethods(getenv("CACHE_METHODS", "GET")),
        TTL:          parseDur(getenv("CACHE_TTL", "30s")),
        KeyStrategy:  getenv("CACHE_KEY_STRATEGY", "route_query"),
        Prefix:       getenv("CACHE_PREFIX", "cache"),
        MaxBodyBytes: atoi(getenv("CACHE_MAX_BODY_BYTES", "1048576")),
    }
}

func parseMethods(s string) map[string]bool {
    out := make(map[string]bool)
    for _, m := range strings.Split(s, ",") {
        if m = strings.TrimSpace(strings.ToUpper(m)); m != "" {
            out[m] = true
        }
    }
    return out
}

// env helpers shared with ratelimit.go.

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func atoi(s string) int {
    n, _ := strconv.Atoi(s)
    return n
}

func parseDur(s string) time.Duration {
    d, err := time.ParseDuration(s)
    if err != nil {
        return time.Second
    }
    return d
}
