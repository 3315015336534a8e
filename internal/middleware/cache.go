package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/lanekeep/venue-checkin/internal/config"
)

// recordingWriter tees the response into a bounded buffer while
// streaming it to the client.  Once size passes limit the buffer stops
// growing and the response is treated as too large to cache.
type recordingWriter struct {
    http.ResponseWriter
    status int
    body   bytes.Buffer
    size   int64
    limit  int64
}

func (w *recordingWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
    w.size += int64(len(b))
    if w.limit <= 0 || w.size <= w.limit {
        w.body.Write(b)
    }
    return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) cacheable(limit int64) bool {
    return w.status == http.StatusOK && (limit <= 0 || w.size <= limit)
}

// keyFor derives a stable Redis key from the route (and optionally
// method and query string, per the configured strategy).  The tail is
// hashed so raw query strings never become key material.
func keyFor(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    var tail string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        tail = "route:" + c.Path()
    case "method_route":
        tail = "method:" + r.Method + ":route:" + c.Path()
    case "method_route_query":
        tail = "method:" + r.Method + ":route:" + c.Path() + ":q:" + r.URL.RawQuery
    default: // route_query
        tail = "route:" + c.Path() + ":q:" + r.URL.RawQuery
    }
    sum := sha1.Sum([]byte(tail))
    return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// Cached entries pack status, headers and body into one value:
// [4B status][4B header length][header JSON][body].

func packEntry(status int, header http.Header, body []byte) ([]byte, error) {
    hdr, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdr)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
    copy(out[8:], hdr)
    copy(out[8+len(hdr):], body)
    return out, nil
}

func unpackEntry(raw []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(raw) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(raw[0:4]))
    hlen := int(binary.BigEndian.Uint32(raw[4:8]))
    if hlen < 0 || 8+hlen > len(raw) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(raw[8:8+hlen], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, raw[8+hlen:], true
}

// NewRedisCache caches successful responses on the read surface so
// dashboards polling the room board and waitlist hit Redis instead of
// MySQL between changes.  Headers are stored alongside the body, so a
// HIT is byte-identical to the original response.  Only configured
// methods participate and only 200s are stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 5 * time.Minute
    }
    maxBody := int64(cfg.MaxBodyBytes)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            key := keyFor(cfg, c)

            if raw, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
                if status, hdr, body, ok := unpackEntry(raw); ok {
                    for k, vals := range hdr {
                        // Echo recomputes Content-Length on write.
                        if strings.EqualFold(k, "Content-Length") {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    if len(body) > 0 {
                        _, _ = c.Response().Write(body)
                    }
                    return nil
                }
            }

            rec := &recordingWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }

            if rec.cacheable(maxBody) {
                hdr := make(http.Header, len(c.Response().Header()))
                for k, vals := range c.Response().Header() {
                    hdr[k] = append([]string(nil), vals...)
                }
                if entry, err := packEntry(rec.status, hdr, rec.body.Bytes()); err == nil {
                    _ = rdb.SetEx(context.Background(), key, entry, ttl).Err()
                }
            }
            return nil
        }
    }
}
