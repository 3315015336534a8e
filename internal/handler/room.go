package handler

import (
    "context"
    "errors"
    "log"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/samber/lo"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/realtime"
    "github.com/lanekeep/venue-checkin/internal/repository"
    "github.com/lanekeep/venue-checkin/internal/roomstate"
    "github.com/lanekeep/venue-checkin/internal/service"
)

// RoomHandler serves the room board and status transitions.  All
// status writes run through the state machine inside one store
// transaction; the hub is notified only after the commit.
type RoomHandler struct {
    Rooms *repository.RoomRepo
    Store service.Store
    Hub   *realtime.Hub
}

func NewRoomHandler(rooms *repository.RoomRepo, store service.Store, hub *realtime.Hub) *RoomHandler {
    return &RoomHandler{Rooms: rooms, Store: store, Hub: hub}
}

type roomResp struct {
    ID     uint64 `json:"id"`
    Number string `json:"number"`
    Kind   string `json:"kind"`
    Status string `json:"status"`
}

type roomStatusReq struct {
    Status   string `json:"status" validate:"required"`
    Override bool   `json:"override"`
    Lane     string `json:"lane"`
}

func toRoomResp(r model.Room) roomResp {
    return roomResp{ID: r.ID, Number: r.Number, Kind: r.Kind, Status: r.Status}
}

// List returns every unit with its current cleaning-cycle status.
// The response is cacheable; dashboards poll it between pushes.
func (h *RoomHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    rooms, err := h.Rooms.List(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"rooms": lo.Map(rooms, func(r model.Room, _ int) roomResp {
        return toRoomResp(r)
    })})
}

// UpdateStatus applies one cleaning-cycle transition to a unit.  A
// non-adjacent transition without override returns 409 needs_override
// so the terminal can raise a confirmation prompt; with override it
// is applied and logged as a privileged correction.
func (h *RoomHandler) UpdateStatus(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
    }
    var req roomStatusReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := c.Validate(&req); err != nil {
        return err
    }
    if !roomstate.Valid(req.Status) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown_status"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    var updated model.Room
    err = h.Store.Serializable(ctx, func(tx service.Tx) error {
        room, err := tx.RoomByID(ctx, id)
        if err != nil {
            return err
        }
        if err := roomstate.ValidateTransition(room.Status, req.Status, req.Override); err != nil {
            return err
        }
        if req.Override {
            if _, soft := roomstate.ValidateTransition(room.Status, req.Status, false).(*roomstate.NeedsOverrideError); soft {
                log.Printf("rooms: privileged correction %s -> %s on room %d by staff %v",
                    room.Status, req.Status, room.ID, c.Get("staff_id"))
            }
        }
        if err := tx.UpdateRoomStatus(ctx, room.ID, req.Status); err != nil {
            return err
        }
        updated = *room
        updated.Status = req.Status
        return nil
    })
    if err != nil {
        var soft *roomstate.NeedsOverrideError
        if errors.As(err, &soft) {
            return c.JSON(http.StatusConflict, echo.Map{
                "error": "needs_override",
                "from":  soft.From,
                "to":    soft.To,
            })
        }
        return engineError(c, err)
    }

    if req.Lane != "" {
        h.Hub.Broadcast(realtime.Event{
            Lane: req.Lane,
            Type: realtime.EventRoomStatus,
            Payload: echo.Map{
                "room_id": updated.ID,
                "number":  updated.Number,
                "status":  updated.Status,
            },
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"ok": true, "room": toRoomResp(updated)})
}
