package realtime

import (
    "errors"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

// laneToken builds the credential the test verifier accepts for a
// given lane, mirroring how production tokens carry a lane claim.
func laneToken(lane string) string { return "token-for-" + lane }

func newChannelServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
    t.Helper()
    e := echo.New()
    verify := func(token, lane string) error {
        if token != laneToken(lane) {
            return errors.New("bad token")
        }
        return nil
    }
    e.GET("/v1/lanes/ws", NewSocketHandler(hub, verify).Serve)
    srv := httptest.NewServer(e)
    t.Cleanup(srv.Close)
    wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/lanes/ws"
    return srv, wsURL
}

func dialLane(wsURL, lane, role, token string) (*websocket.Conn, error) {
    d := websocket.Dialer{
        Subprotocols:     []string{KioskTokenProtocol + token},
        HandshakeTimeout: 2 * time.Second,
    }
    conn, _, err := d.Dial(wsURL+"?lane="+lane+"&role="+role, nil)
    return conn, err
}

func TestServeRejectsBadRoleBeforeUpgrade(t *testing.T) {
    _, wsURL := newChannelServer(t, NewHub())

    _, err := dialLane(wsURL, "lane-1", "manager", laneToken("lane-1"))
    require.Error(t, err, "unknown role never reaches the upgrade")
}

func TestServeClosesPolicyViolationOnBadToken(t *testing.T) {
    _, wsURL := newChannelServer(t, NewHub())

    conn, err := dialLane(wsURL, "lane-1", RoleCustomer, "wrong")
    require.NoError(t, err, "handshake completes so the client can read the close code")
    defer conn.Close()

    _ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    _, _, err = conn.ReadMessage()
    var closeErr *websocket.CloseError
    require.ErrorAs(t, err, &closeErr)
    assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestServeRejectsTokenForOtherLane(t *testing.T) {
    hub := NewHub()
    _, wsURL := newChannelServer(t, hub)

    // A credential minted for lane-1 must not open lane-2's channel.
    conn, err := dialLane(wsURL, "lane-2", RoleEmployee, laneToken("lane-1"))
    require.NoError(t, err, "handshake completes so the client can read the close code")
    defer conn.Close()

    _ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    _, _, err = conn.ReadMessage()
    var closeErr *websocket.CloseError
    require.ErrorAs(t, err, &closeErr)
    assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
    assert.Equal(t, 0, hub.Subscribers("lane-2", RoleEmployee))
}

func TestServeDeliversBroadcasts(t *testing.T) {
    hub := NewHub()
    _, wsURL := newChannelServer(t, hub)

    conn, err := dialLane(wsURL, "lane-3", RoleEmployee, laneToken("lane-3"))
    require.NoError(t, err)
    defer conn.Close()
    assert.Equal(t, KioskTokenProtocol+laneToken("lane-3"), conn.Subprotocol())

    // Subscription registration races the dial return; wait for it.
    require.Eventually(t, func() bool {
        return hub.Subscribers("lane-3", RoleEmployee) == 1
    }, 2*time.Second, 10*time.Millisecond)

    hub.Broadcast(Event{Lane: "lane-3", Type: EventWaitlistOffered, Roles: []string{RoleEmployee}})

    _ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    var got Event
    require.NoError(t, conn.ReadJSON(&got))
    assert.Equal(t, EventWaitlistOffered, got.Type)
    assert.Equal(t, "lane-3", got.Lane)
}

func TestServeScopesRoles(t *testing.T) {
    hub := NewHub()
    _, wsURL := newChannelServer(t, hub)

    cust, err := dialLane(wsURL, "lane-4", RoleCustomer, laneToken("lane-4"))
    require.NoError(t, err)
    defer cust.Close()

    require.Eventually(t, func() bool {
        return hub.Subscribers("lane-4", RoleCustomer) == 1
    }, 2*time.Second, 10*time.Millisecond)

    // Employee-only event must not reach the customer side.
    hub.Broadcast(Event{Lane: "lane-4", Type: EventUpgradeFulfilled, Roles: []string{RoleEmployee}})
    hub.Broadcast(Event{Lane: "lane-4", Type: EventRoomStatus})

    _ = cust.SetReadDeadline(time.Now().Add(2 * time.Second))
    var got Event
    require.NoError(t, cust.ReadJSON(&got))
    assert.Equal(t, EventRoomStatus, got.Type, "only the role-scoped event is skipped")
}
