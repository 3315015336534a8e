package realtime

import (
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
)

// KioskTokenProtocol is the sub-protocol prefix carrying the lane
// credential.  Browsers cannot set arbitrary headers on a websocket
// handshake, so the token rides in Sec-WebSocket-Protocol as
// "kiosk-token.<token>".
const KioskTokenProtocol = "kiosk-token."

const (
    writeWait  = 10 * time.Second
    pongWait   = 60 * time.Second
    pingPeriod = 54 * time.Second
    maxMsgSize = 4096
)

// SocketHandler upgrades lane channel requests and bridges each
// accepted socket to a hub subscription.  An invalid or missing
// credential completes the handshake and then closes with code 1008
// so the client can classify the failure as permanent.
type SocketHandler struct {
    hub      *Hub
    verify   func(token, lane string) error
    upgrader websocket.Upgrader
}

// NewSocketHandler returns a handler publishing to the given hub.
// verify checks the kiosk token extracted from the sub-protocol
// against the lane the client asked to join, so a token minted for
// one lane never opens another lane's channel.
func NewSocketHandler(hub *Hub, verify func(token, lane string) error) *SocketHandler {
    return &SocketHandler{
        hub:    hub,
        verify: verify,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
            // Terminals are served from the application origin; the
            // reverse proxy in front of the service enforces it.
            CheckOrigin: func(*http.Request) bool { return true },
        },
    }
}

// kioskToken extracts the credential from the offered sub-protocols.
// It returns the raw token and the full protocol value to echo back
// in the handshake response.
func kioskToken(protocols []string) (token, protocol string) {
    for _, p := range protocols {
        if strings.HasPrefix(p, KioskTokenProtocol) {
            return strings.TrimPrefix(p, KioskTokenProtocol), p
        }
    }
    return "", ""
}

// Serve handles GET /v1/lanes/ws?lane=...&role=....
func (h *SocketHandler) Serve(c echo.Context) error {
    lane := c.QueryParam("lane")
    role := c.QueryParam("role")
    if lane == "" || !ValidRole(role) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lane or role"})
    }
    token, protocol := kioskToken(websocket.Subprotocols(c.Request()))
    respHeader := http.Header{}
    if protocol != "" {
        respHeader.Set("Sec-WebSocket-Protocol", protocol)
    }
    conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), respHeader)
    if err != nil {
        // Upgrade already wrote the handshake failure.
        return nil
    }
    if token == "" || h.verify(token, lane) != nil {
        msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
        _ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
        _ = conn.Close()
        return nil
    }
    sub := h.hub.Subscribe(lane, role)
    go h.writePump(conn, sub)
    h.readPump(conn, sub)
    return nil
}

// writePump drains the subscription onto the socket and keeps the
// connection alive with pings.  It exits when the subscription
// channel closes or a write fails.
func (h *SocketHandler) writePump(conn *websocket.Conn, sub *Subscription) {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        _ = conn.Close()
    }()
    for {
        select {
        case ev, ok := <-sub.C:
            _ = conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                _ = conn.WriteMessage(websocket.CloseMessage,
                    websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
                return
            }
            if err := conn.WriteJSON(ev); err != nil {
                log.Printf("broadcaster: write to %s/%s failed: %v", sub.Lane, sub.Role, err)
                h.hub.Unsubscribe(sub)
                return
            }
        case <-ticker.C:
            _ = conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                h.hub.Unsubscribe(sub)
                return
            }
        }
    }
}

// readPump discards inbound frames (the channel is push-only) and
// tears the subscription down when the peer goes away.
func (h *SocketHandler) readPump(conn *websocket.Conn, sub *Subscription) {
    defer func() {
        h.hub.Unsubscribe(sub)
        _ = conn.Close()
    }()
    conn.SetReadLimit(maxMsgSize)
    _ = conn.SetReadDeadline(time.Now().Add(pongWait))
    conn.SetPongHandler(func(string) error {
        return conn.SetReadDeadline(time.Now().Add(pongWait))
    })
    for {
        if _, _, err := conn.ReadMessage(); err != nil {
            return
        }
    }
}
