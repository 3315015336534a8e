package laneclient

import (
    "math/rand"
    "strings"
    "time"

    "github.com/gorilla/websocket"
)

// Reconnection policy constants.  Delays grow as
// 500ms × 2^(attempt-1) up to 30s, with up to 20% jitter on top.  A
// connection that has never opened and fails three times in a row
// pauses for the cooldown before restarting the sequence: initial
// connectivity problems are worth a long pause to avoid hammering,
// while a drop of an established connection is worth quick recovery.
const (
    baseDelay           = 500 * time.Millisecond
    maxDelay            = 30 * time.Second
    jitterFraction      = 0.2
    initialFailureLimit = 3
    cooldownDelay       = 60 * time.Second
)

// RetryDelay returns the backoff before the given reconnect attempt
// (1-based), without jitter.
func RetryDelay(attempt int) time.Duration {
    if attempt < 1 {
        attempt = 1
    }
    // Cap the shift so the doubling cannot overflow.
    if attempt > 8 {
        return maxDelay
    }
    d := baseDelay << (attempt - 1)
    if d > maxDelay {
        return maxDelay
    }
    return d
}

// addJitter spreads reconnect attempts by up to jitterFraction of
// the delay so a fleet of terminals does not reconnect in lockstep.
func addJitter(d time.Duration, rng *rand.Rand) time.Duration {
    if d <= 0 {
        return d
    }
    return d + time.Duration(rng.Float64()*jitterFraction*float64(d))
}

// authKeywords mark a close reason as an authorization rejection.
var authKeywords = []string{"authorization", "unauthorized", "forbidden", "401", "403"}

// IsAuthClose classifies a close event as a permanent auth failure:
// either the policy-violation close code or a reason text mentioning
// authorization.  Such closes are never retried; the connection is
// evicted and the failure surfaces to the UI layer.
func IsAuthClose(code int, reason string) bool {
    if code == websocket.ClosePolicyViolation {
        return true
    }
    reason = strings.ToLower(reason)
    for _, kw := range authKeywords {
        if strings.Contains(reason, kw) {
            return true
        }
    }
    return false
}
