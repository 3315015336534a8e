package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/lanekeep/venue-checkin/internal/config"
)

// NewTokenBucket returns a Redis-backed token-bucket rate limiter.  The
// bucket state lives in a Redis hash per key so limits hold across server
// instances; the refill math runs in a Lua script to stay atomic under
// concurrent lanes hitting the same key.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return func(c echo.Context) error { return next(c) } }
    }

    // Returns {allowed, tokens_left, retry_after_ms}.  New buckets
    // start full; refill is whole intervals only so the bucket clock
    // never drifts.
    limiterScript := redis.NewScript(`
        local now = tonumber(ARGV[1])
        local cap = tonumber(ARGV[2])
        local refill = tonumber(ARGV[3])
        local interval = tonumber(ARGV[4])
        local ttl = tonumber(ARGV[5])

        local st = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill_ms')
        local tokens = tonumber(st[1])
        local last = tonumber(st[2])
        if tokens == nil or last == nil then
            tokens = cap
            last = now
        end

        if interval > 0 and refill > 0 then
            local ticks = math.floor(math.max(0, now - last) / interval)
            if ticks > 0 then
                tokens = math.min(cap, tokens + ticks * refill)
                last = last + ticks * interval
            end
        end

        local allowed = 0
        local retry = 0
        if tokens > 0 then
            allowed = 1
            tokens = tokens - 1
        else
            retry = math.max(0, interval - (now - last))
        end

        redis.call('HMSET', KEYS[1], 'tokens', tokens, 'last_refill_ms', last)
        redis.call('EXPIRE', KEYS[1], ttl)
        return { allowed, tokens, retry }
    `)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            now := time.Now()

            args := []interface{}{
                now.UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL / time.Second),
            }

            ctx := c.Request().Context()
            vals, err := limiterScript.Run(ctx, rdb, []string{key}, args...).Result()
            if err != nil {
                // Fail open: a Redis outage must not take the register down.
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
                }
                return next(c)
            }

            arr, ok := vals.([]interface{})
            if !ok || len(arr) != 3 {
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] unexpected script result for key=%s: %#v", key, vals)
                }
                return next(c)
            }
            allowed := asInt64(arr[0]) == 1
            remaining := asInt64(arr[1])
            retryMs := asInt64(arr[2])

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if !allowed {
                secs := int(math.Ceil(float64(retryMs) / 1000.0))
                if secs < 0 {
                    secs = 0
                }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    c.Logger().Infof("[ratelimit] block key=%s remaining=%d retry=%dms", key, remaining, retryMs)
                }
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }

            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int32:
        return int64(t)
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case float32:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    strategy := strings.ToLower(cfg.KeyStrategy)
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    sid := currentStaffID(c)
    route := c.Request().Method + " " + c.Path()

    switch strategy {
    case "ip":
        parts = append(parts, "ip", ip)
    case "staff":
        parts = append(parts, "staff", sid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_staff":
        parts = append(parts, "ip", ip, "staff", sid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "staff_route":
        parts = append(parts, "staff", sid, "route", route)
    default:
        parts = append(parts, "ip", ip, "staff", sid, "route", route)
    }
    return strings.Join(parts, ":")
}

func currentStaffID(c echo.Context) string {
    switch v := c.Get("staff_id").(type) {
    case string:
        if v != "" {
            return v
        }
    case float64:
        return strconv.FormatUint(uint64(v), 10)
    case uint64:
        return strconv.FormatUint(v, 10)
    }
    return "anon"
}
