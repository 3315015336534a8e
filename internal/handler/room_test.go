package handler

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/realtime"
    "github.com/lanekeep/venue-checkin/internal/roomstate"
    "github.com/lanekeep/venue-checkin/internal/service"
)

// stubTx implements only the store methods the room handler touches;
// the embedded interface panics on anything else, which would flag a
// handler reaching beyond its contract.
type stubTx struct {
    service.Tx
    room    model.Room
    updated *string
}

func (t *stubTx) RoomByID(_ context.Context, id uint64) (*model.Room, error) {
    cp := t.room
    return &cp, nil
}

func (t *stubTx) UpdateRoomStatus(_ context.Context, _ uint64, status string) error {
    *t.updated = status
    return nil
}

type stubStore struct {
    tx *stubTx
}

func (s *stubStore) Serializable(_ context.Context, fn func(tx service.Tx) error) error {
    return fn(s.tx)
}

func postStatus(t *testing.T, h *RoomHandler, body string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    e.Validator = NewValidator()
    req := httptest.NewRequest(http.MethodPost, "/v1/rooms/7/status", strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    c.SetPath("/v1/rooms/:id/status")
    c.SetParamNames("id")
    c.SetParamValues("7")
    require.NoError(t, h.UpdateStatus(c))
    return rec
}

func newRoomHandler(current string) (*RoomHandler, *string, *realtime.Hub) {
    updated := ""
    tx := &stubTx{
        room:    model.Room{ID: 7, Number: "204", Kind: model.RoomKindDeluxe, Status: current},
        updated: &updated,
    }
    hub := realtime.NewHub()
    return NewRoomHandler(nil, &stubStore{tx: tx}, hub), &updated, hub
}

func TestUpdateStatusAdjacentTransition(t *testing.T) {
    h, updated, hub := newRoomHandler(roomstate.StatusClean)
    sub := hub.Subscribe("lane-2", realtime.RoleEmployee)

    rec := postStatus(t, h, `{"status":"OCCUPIED","lane":"lane-2"}`)

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, roomstate.StatusOccupied, *updated)

    select {
    case ev := <-sub.C:
        assert.Equal(t, realtime.EventRoomStatus, ev.Type)
        assert.Equal(t, "lane-2", ev.Lane)
    default:
        t.Fatal("expected a room.status broadcast")
    }
}

func TestUpdateStatusNeedsOverride(t *testing.T) {
    h, updated, _ := newRoomHandler(roomstate.StatusDirty)

    rec := postStatus(t, h, `{"status":"CLEAN"}`)

    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Contains(t, rec.Body.String(), "needs_override")
    assert.Empty(t, *updated, "store is untouched on a soft failure")
}

func TestUpdateStatusOverrideApplies(t *testing.T) {
    h, updated, _ := newRoomHandler(roomstate.StatusDirty)

    rec := postStatus(t, h, `{"status":"CLEAN","override":true}`)

    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, roomstate.StatusClean, *updated)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
    h, updated, _ := newRoomHandler(roomstate.StatusClean)

    rec := postStatus(t, h, `{"status":"SPOTLESS"}`)

    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), "unknown_status")
    assert.Empty(t, *updated)
}
