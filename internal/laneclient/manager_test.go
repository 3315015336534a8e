package laneclient

import (
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// delayRecorder stands in for time.After: it records every requested
// delay and fires immediately so tests step through the reconnect
// loop without waiting.
type delayRecorder struct {
    mu     sync.Mutex
    delays []time.Duration
}

func (r *delayRecorder) after(d time.Duration) <-chan time.Time {
    r.mu.Lock()
    r.delays = append(r.delays, d)
    r.mu.Unlock()
    ch := make(chan time.Time, 1)
    ch <- time.Time{}
    return ch
}

func (r *delayRecorder) snapshot() []time.Duration {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]time.Duration, len(r.delays))
    copy(out, r.delays)
    return out
}

// fakeSocket replays scripted messages and then fails reads with the
// scripted error.
type fakeSocket struct {
    mu   sync.Mutex
    msgs []Message
    err  error
}

func (s *fakeSocket) ReadJSON(v any) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if len(s.msgs) > 0 {
        m := s.msgs[0]
        s.msgs = s.msgs[1:]
        *(v.(*Message)) = m
        return nil
    }
    return s.err
}

func (s *fakeSocket) Close() error { return nil }

// scriptDialer runs through a script of dial outcomes, repeating the
// last step forever, and records the sub-protocols offered.
type scriptDialer struct {
    mu     sync.Mutex
    calls  int
    protos []string
    script []func() (Socket, error)
}

func dialFail() func() (Socket, error) {
    return func() (Socket, error) { return nil, errors.New("connection refused") }
}

func dialSocket(s *fakeSocket) func() (Socket, error) {
    return func() (Socket, error) { return s, nil }
}

func (d *scriptDialer) dial(rawURL string, subprotocols []string) (Socket, error) {
    d.mu.Lock()
    step := d.calls
    if step >= len(d.script) {
        step = len(d.script) - 1
    }
    d.calls++
    d.protos = subprotocols
    fn := d.script[step]
    d.mu.Unlock()
    return fn()
}

func (d *scriptDialer) callCount() int {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.calls
}

func newTestRegistry(d *scriptDialer, rec *delayRecorder) *Registry {
    r := NewRegistry("https://venue.test")
    r.dial = d.dial
    r.jitter = func(d time.Duration) time.Duration { return d } // deterministic delays
    if rec != nil {
        r.after = rec.after
    }
    return r
}

func waitClosed(t *testing.T, c *Conn) {
    t.Helper()
    deadline := time.After(2 * time.Second)
    for {
        select {
        case _, open := <-c.Events():
            if !open {
                return
            }
        case <-deadline:
            t.Fatal("events channel never closed")
        }
    }
}

func TestGetFailsFastWithoutCredential(t *testing.T) {
    d := &scriptDialer{script: []func() (Socket, error){dialFail()}}
    reg := newTestRegistry(d, &delayRecorder{})

    _, err := reg.Get("lane-1", "customer", "")
    require.ErrorIs(t, err, ErrMissingCredential)
    assert.Equal(t, 0, d.callCount(), "no network call is made")
}

func TestGetSharesInFlightConnection(t *testing.T) {
    d := &scriptDialer{script: []func() (Socket, error){dialFail()}}
    rec := &delayRecorder{}
    reg := newTestRegistry(d, rec)
    defer reg.CloseAll()

    c1, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)
    c2, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)
    assert.Same(t, c1, c2)

    // A different role is a different channel.
    c3, err := reg.Get("lane-1", "employee", "tok")
    require.NoError(t, err)
    assert.NotSame(t, c1, c3)
}

func TestInitialFailureCooldown(t *testing.T) {
    d := &scriptDialer{script: []func() (Socket, error){dialFail()}}
    rec := &delayRecorder{}
    reg := newTestRegistry(d, rec)

    _, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)

    require.Eventually(t, func() bool { return len(rec.snapshot()) >= 6 },
        2*time.Second, time.Millisecond)
    reg.Close("lane-1", "customer")

    delays := rec.snapshot()[:6]
    want := []time.Duration{
        500 * time.Millisecond, // attempt 1
        1 * time.Second,        // attempt 2
        60 * time.Second,       // third consecutive initial failure: cooldown
        500 * time.Millisecond, // sequence restarts from attempt 1
        1 * time.Second,
        60 * time.Second,
    }
    assert.Equal(t, want, delays)
    assert.GreaterOrEqual(t, d.callCount(), 4, "a fourth attempt follows the cooldown")
}

func TestSuccessfulOpenResetsCounters(t *testing.T) {
    drop := &fakeSocket{err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}}
    d := &scriptDialer{script: []func() (Socket, error){
        dialFail(),
        dialFail(),
        dialSocket(drop), // opens, then drops
        dialFail(),
        dialFail(),
        dialFail(),
    }}
    rec := &delayRecorder{}
    reg := newTestRegistry(d, rec)

    _, err := reg.Get("lane-1", "employee", "tok")
    require.NoError(t, err)

    require.Eventually(t, func() bool { return len(rec.snapshot()) >= 6 },
        2*time.Second, time.Millisecond)
    reg.Close("lane-1", "employee")

    delays := rec.snapshot()[:6]
    want := []time.Duration{
        500 * time.Millisecond, // initial attempt 1
        1 * time.Second,        // initial attempt 2
        500 * time.Millisecond, // open reset the counter: drop recovery restarts at 1
        1 * time.Second,
        2 * time.Second,
        4 * time.Second, // no cooldown once the connection has opened
    }
    assert.Equal(t, want, delays)
}

func TestPolicyCloseIsFatal(t *testing.T) {
    rejected := &fakeSocket{err: &websocket.CloseError{
        Code: websocket.ClosePolicyViolation,
        Text: "unauthorized",
    }}
    d := &scriptDialer{script: []func() (Socket, error){dialSocket(rejected)}}
    rec := &delayRecorder{}
    reg := newTestRegistry(d, rec)

    c, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)
    waitClosed(t, c)

    var authErr *AuthError
    require.ErrorAs(t, c.Err(), &authErr)
    assert.Equal(t, websocket.ClosePolicyViolation, authErr.Code)
    assert.Empty(t, rec.snapshot(), "no reconnect is ever scheduled")

    // The failed connection is evicted: Get starts a fresh one.
    c2, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)
    assert.NotSame(t, c, c2)
    reg.CloseAll()
}

func TestAuthHandshakeRejectionIsFatal(t *testing.T) {
    d := &scriptDialer{script: []func() (Socket, error){
        func() (Socket, error) { return nil, &AuthError{Code: 401, Reason: "401 Unauthorized"} },
    }}
    rec := &delayRecorder{}
    reg := newTestRegistry(d, rec)

    c, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)
    waitClosed(t, c)

    var authErr *AuthError
    require.ErrorAs(t, c.Err(), &authErr)
    assert.Empty(t, rec.snapshot())
    assert.Equal(t, 1, d.callCount())
}

func TestTransientCloseSchedulesBackoff(t *testing.T) {
    restart := &fakeSocket{err: &websocket.CloseError{
        Code: websocket.CloseServiceRestart,
        Text: "server restarting",
    }}
    d := &scriptDialer{script: []func() (Socket, error){dialSocket(restart), dialFail()}}
    rec := &delayRecorder{}
    reg := newTestRegistry(d, rec)

    _, err := reg.Get("lane-1", "employee", "tok")
    require.NoError(t, err)

    require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 },
        2*time.Second, time.Millisecond)
    reg.Close("lane-1", "employee")

    assert.Equal(t, 500*time.Millisecond, rec.snapshot()[0])
}

func TestMessagesDelivered(t *testing.T) {
    sock := &fakeSocket{
        msgs: []Message{{Lane: "lane-1", Type: "room.status"}},
        err:  &websocket.CloseError{Code: websocket.ClosePolicyViolation},
    }
    d := &scriptDialer{script: []func() (Socket, error){dialSocket(sock)}}
    reg := newTestRegistry(d, &delayRecorder{})

    c, err := reg.Get("lane-1", "customer", "tok-123")
    require.NoError(t, err)

    select {
    case m := <-c.Events():
        assert.Equal(t, "room.status", m.Type)
        assert.Equal(t, "lane-1", m.Lane)
    case <-time.After(2 * time.Second):
        t.Fatal("no message delivered")
    }
    waitClosed(t, c)

    d.mu.Lock()
    protos := d.protos
    d.mu.Unlock()
    assert.Equal(t, []string{"kiosk-token.tok-123"}, protos,
        "credential rides as a sub-protocol token")
}

func TestCloseCancelsPendingRetry(t *testing.T) {
    d := &scriptDialer{script: []func() (Socket, error){dialFail()}}
    reg := newTestRegistry(d, nil)
    waiting := make(chan struct{}, 8)
    reg.after = func(time.Duration) <-chan time.Time {
        waiting <- struct{}{}
        return make(chan time.Time) // never fires
    }

    c, err := reg.Get("lane-1", "customer", "tok")
    require.NoError(t, err)
    select {
    case <-waiting:
    case <-time.After(2 * time.Second):
        t.Fatal("retry never scheduled")
    }

    reg.Close("lane-1", "customer")
    waitClosed(t, c)
    assert.NoError(t, c.Err(), "deliberate close is not a failure")
    assert.Equal(t, 1, d.callCount(), "no further attempt after Close")
}

func TestChannelURL(t *testing.T) {
    u, err := ChannelURL("https://venue.example", "lane-7", "customer")
    require.NoError(t, err)
    assert.Equal(t, "wss://venue.example/v1/lanes/ws?lane=lane-7&role=customer", u)

    u, err = ChannelURL("http://localhost:8080", "lane-1", "employee")
    require.NoError(t, err)
    assert.Equal(t, "ws://localhost:8080/v1/lanes/ws?lane=lane-1&role=employee", u)

    _, err = ChannelURL("ftp://venue.example", "lane-1", "employee")
    require.Error(t, err)
}
