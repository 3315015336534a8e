// Package laneclient maintains the terminal side of lane channels: a
// registry holding at most one live connection per (lane, role) pair
// with resilient reconnection.  The registry is owned by whatever
// top-level context manages the terminal session; it must be closed
// when that context goes away so no sockets or timers leak across
// logical sessions.
package laneclient

import (
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "math/rand"
    "net/http"
    "net/url"
    "sync"
    "time"

    "github.com/gorilla/websocket"
)

// kioskTokenProtocol is the sub-protocol prefix carrying the lane
// credential on the handshake.  Browsers cannot set arbitrary
// headers on a websocket, so the token rides here.
const kioskTokenProtocol = "kiosk-token."

// channelPath is the fixed lane channel endpoint on the application
// origin.
const channelPath = "/v1/lanes/ws"

// ErrMissingCredential is returned by Get before any network
// activity when no credential is supplied.
var ErrMissingCredential = errors.New("missing lane credential")

// AuthError is a permanent authorization failure.  A connection that
// fails this way is evicted and never retried; the UI layer must
// surface it as fatal.
type AuthError struct {
    Code   int
    Reason string
}

func (e *AuthError) Error() string {
    return fmt.Sprintf("lane channel rejected: code=%d reason=%q", e.Code, e.Reason)
}

// Message is one domain event received over a lane channel.  The
// payload stays raw; the terminal decodes it per event type.
type Message struct {
    Lane    string          `json:"lane"`
    Type    string          `json:"type"`
    Payload json.RawMessage `json:"payload"`
}

// Socket is the read side of an established lane channel.  The
// production implementation is *websocket.Conn.
type Socket interface {
    ReadJSON(v any) error
    Close() error
}

// DialFunc establishes a socket to the given target offering the
// given sub-protocols.
type DialFunc func(rawURL string, subprotocols []string) (Socket, error)

// gorillaDial is the production dialer.  A handshake rejected with
// 401 or 403 is reported as *AuthError so the caller never retries
// it.
func gorillaDial(rawURL string, subprotocols []string) (Socket, error) {
    d := websocket.Dialer{
        Subprotocols:     subprotocols,
        HandshakeTimeout: 10 * time.Second,
    }
    conn, resp, err := d.Dial(rawURL, nil)
    if err != nil {
        if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
            return nil, &AuthError{Code: resp.StatusCode, Reason: resp.Status}
        }
        return nil, err
    }
    return conn, nil
}

// ChannelURL derives the lane channel target from the page origin:
// the origin's host with the ws scheme, the fixed channel path, and
// lane/role as query parameters.
func ChannelURL(origin, lane, role string) (string, error) {
    u, err := url.Parse(origin)
    if err != nil {
        return "", fmt.Errorf("parse origin: %w", err)
    }
    switch u.Scheme {
    case "http":
        u.Scheme = "ws"
    case "https":
        u.Scheme = "wss"
    case "ws", "wss":
    default:
        return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
    }
    u.Path = channelPath
    q := url.Values{}
    q.Set("lane", lane)
    q.Set("role", role)
    u.RawQuery = q.Encode()
    return u.String(), nil
}

type connKey struct {
    lane string
    role string
}

// Registry caches lane connections keyed by (lane, role).  Get
// returns the cached connection while it is healthy and replaces it
// once it has terminally failed.  Close and CloseAll cancel pending
// retry timers immediately, so no reconnect fires for a lane the
// terminal has left.
type Registry struct {
    origin string
    dial   DialFunc
    after  func(d time.Duration) <-chan time.Time
    jitter func(d time.Duration) time.Duration

    mu    sync.Mutex
    conns map[connKey]*Conn
}

// NewRegistry returns a registry dialing against the given
// application origin (e.g. "https://venue.example").
func NewRegistry(origin string) *Registry {
    rng := rand.New(rand.NewSource(time.Now().UnixNano()))
    var rngMu sync.Mutex
    return &Registry{
        origin: origin,
        dial:   gorillaDial,
        after:  time.After,
        jitter: func(d time.Duration) time.Duration {
            rngMu.Lock()
            defer rngMu.Unlock()
            return addJitter(d, rng)
        },
        conns:  make(map[connKey]*Conn),
    }
}

// Get returns the live connection for (lane, role), starting one if
// none exists or the cached one has terminally failed.  It fails
// fast with ErrMissingCredential before any network call when the
// credential is empty.  Concurrent callers observe the same
// in-flight connection: only one connect attempt per pair exists at
// any time.
func (r *Registry) Get(lane, role, credential string) (*Conn, error) {
    if credential == "" {
        return nil, ErrMissingCredential
    }
    if lane == "" || role == "" {
        return nil, errors.New("lane and role are required")
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    k := connKey{lane: lane, role: role}
    if c, ok := r.conns[k]; ok && !c.failed() {
        return c, nil
    }
    target, err := ChannelURL(r.origin, lane, role)
    if err != nil {
        return nil, err
    }
    c := &Conn{
        Lane:       lane,
        Role:       role,
        target:     target,
        credential: credential,
        reg:        r,
        events:     make(chan Message, 32),
        done:       make(chan struct{}),
    }
    r.conns[k] = c
    go c.run()
    return c, nil
}

// Close tears down the connection for (lane, role): pending timers
// are cancelled, the socket is closed and the cache entry evicted.
// It must be called when the owning UI context unmounts or the
// lane/role identity changes.
func (r *Registry) Close(lane, role string) {
    r.mu.Lock()
    k := connKey{lane: lane, role: role}
    c := r.conns[k]
    delete(r.conns, k)
    r.mu.Unlock()
    if c != nil {
        c.shutdown()
    }
}

// CloseAll tears down every cached connection.
func (r *Registry) CloseAll() {
    r.mu.Lock()
    conns := make([]*Conn, 0, len(r.conns))
    for _, c := range r.conns {
        conns = append(conns, c)
    }
    r.conns = make(map[connKey]*Conn)
    r.mu.Unlock()
    for _, c := range conns {
        c.shutdown()
    }
}

// evict removes a terminally failed connection from the cache if it
// is still the cached one.
func (r *Registry) evict(c *Conn) {
    k := connKey{lane: c.Lane, role: c.Role}
    r.mu.Lock()
    if r.conns[k] == c {
        delete(r.conns, k)
    }
    r.mu.Unlock()
}

// Conn is one managed lane connection.  It reconnects on transient
// failures per the backoff policy and stops permanently on auth
// failures or shutdown.  Events() closes when the connection is
// finished; Err() then reports the terminal failure, if any.
type Conn struct {
    Lane string
    Role string

    target     string
    credential string
    reg        *Registry

    events chan Message
    done   chan struct{}
    once   sync.Once

    mu              sync.Mutex
    sock            Socket
    attempt         int
    initialFailures int
    everOpened      bool
    terminalErr     error
}

// Events returns the channel delivering lane messages.  It is closed
// when the connection terminates for any reason.
func (c *Conn) Events() <-chan Message { return c.events }

// Err reports the terminal failure after Events has closed.  A nil
// error means the connection was closed deliberately.
func (c *Conn) Err() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.terminalErr
}

// failed reports whether the connection has terminated.
func (c *Conn) failed() bool {
    select {
    case <-c.done:
        return true
    default:
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.terminalErr != nil
}

// shutdown is the deliberate teardown path: it cancels retry waits,
// closes the socket and lets run exit.
func (c *Conn) shutdown() {
    c.once.Do(func() { close(c.done) })
    c.mu.Lock()
    sock := c.sock
    c.mu.Unlock()
    if sock != nil {
        _ = sock.Close()
    }
}

// fail records a permanent failure and evicts the connection.
func (c *Conn) fail(err error) {
    c.mu.Lock()
    c.terminalErr = err
    c.mu.Unlock()
    c.reg.evict(c)
    c.once.Do(func() { close(c.done) })
}

// run is the connection lifecycle loop.  The events channel is
// closed exactly once here, when the loop exits.
func (c *Conn) run() {
    defer close(c.events)
    for {
        select {
        case <-c.done:
            return
        default:
        }
        sock, err := c.reg.dial(c.target, []string{kioskTokenProtocol + c.credential})
        if err != nil {
            var authErr *AuthError
            if errors.As(err, &authErr) {
                log.Printf("laneclient: %s/%s rejected at handshake: %v", c.Lane, c.Role, authErr)
                c.fail(authErr)
                return
            }
            if !c.waitRetry() {
                return
            }
            continue
        }

        c.mu.Lock()
        c.sock = sock
        c.attempt = 0
        c.initialFailures = 0
        c.everOpened = true
        c.mu.Unlock()

        readErr := c.readLoop(sock)
        _ = sock.Close()
        c.mu.Lock()
        c.sock = nil
        c.mu.Unlock()

        select {
        case <-c.done:
            return
        default:
        }
        code, reason := closeInfo(readErr)
        if IsAuthClose(code, reason) {
            log.Printf("laneclient: %s/%s closed for auth (code=%d): not retrying", c.Lane, c.Role, code)
            c.fail(&AuthError{Code: code, Reason: reason})
            return
        }
        if !c.waitRetry() {
            return
        }
    }
}

// readLoop pumps messages from the socket to the events channel
// until a read fails.
func (c *Conn) readLoop(sock Socket) error {
    for {
        var m Message
        if err := sock.ReadJSON(&m); err != nil {
            return err
        }
        select {
        case c.events <- m:
        case <-c.done:
            return errors.New("connection closed")
        }
    }
}

// closeInfo extracts the close code and reason from a read error.
// A non-close error maps to the abnormal-closure code.
func closeInfo(err error) (int, string) {
    var ce *websocket.CloseError
    if errors.As(err, &ce) {
        return ce.Code, ce.Text
    }
    return websocket.CloseAbnormalClosure, ""
}

// waitRetry sleeps out the reconnect policy and reports whether the
// loop should try again.  It returns false when the connection was
// shut down while waiting.
func (c *Conn) waitRetry() bool {
    c.mu.Lock()
    c.attempt++
    var delay time.Duration
    cooldown := false
    if !c.everOpened {
        c.initialFailures++
        if c.initialFailures >= initialFailureLimit {
            // Never got through: pause instead of hammering, then
            // restart the backoff sequence from attempt 1.
            c.initialFailures = 0
            c.attempt = 0
            cooldown = true
        }
    }
    if cooldown {
        delay = cooldownDelay
    } else {
        delay = c.reg.jitter(RetryDelay(c.attempt))
    }
    c.mu.Unlock()

    select {
    case <-c.reg.after(delay):
        return true
    case <-c.done:
        return false
    }
}
