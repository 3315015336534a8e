package laneclient

import (
    "math/rand"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/stretchr/testify/assert"
)

func TestRetryDelayDoublesAndCaps(t *testing.T) {
    want := []time.Duration{
        500 * time.Millisecond,
        1 * time.Second,
        2 * time.Second,
        4 * time.Second,
        8 * time.Second,
        16 * time.Second,
        30 * time.Second, // 32s capped
        30 * time.Second,
    }
    for i, w := range want {
        assert.Equal(t, w, RetryDelay(i+1), "attempt %d", i+1)
    }
    assert.Equal(t, 30*time.Second, RetryDelay(50))
    assert.Equal(t, 500*time.Millisecond, RetryDelay(0), "attempts below 1 clamp to the base delay")
}

func TestAddJitterBounded(t *testing.T) {
    rng := rand.New(rand.NewSource(1))
    base := 10 * time.Second
    for i := 0; i < 100; i++ {
        d := addJitter(base, rng)
        assert.GreaterOrEqual(t, d, base)
        assert.LessOrEqual(t, d, base+2*time.Second)
    }
}

func TestIsAuthClose(t *testing.T) {
    assert.True(t, IsAuthClose(websocket.ClosePolicyViolation, ""))
    assert.True(t, IsAuthClose(websocket.CloseNormalClosure, "Unauthorized token"))
    assert.True(t, IsAuthClose(websocket.CloseAbnormalClosure, "authorization expired"))
    assert.True(t, IsAuthClose(websocket.CloseGoingAway, "HTTP 403 Forbidden"))
    assert.True(t, IsAuthClose(websocket.CloseNoStatusReceived, "got 401 from upstream"))

    assert.False(t, IsAuthClose(websocket.CloseNormalClosure, ""))
    assert.False(t, IsAuthClose(websocket.CloseAbnormalClosure, "read tcp: connection reset"))
    assert.False(t, IsAuthClose(websocket.CloseGoingAway, "server restarting"))
}
