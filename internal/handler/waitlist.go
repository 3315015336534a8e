package handler

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/samber/lo"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/realtime"
    "github.com/lanekeep/venue-checkin/internal/repository"
    "github.com/lanekeep/venue-checkin/internal/service"
)

// WaitlistHandler serves the upgrade waitlist: listing with the lazy
// expiry sweep applied, making offers, and cancelling entries.
type WaitlistHandler struct {
    Waitlist *repository.WaitlistRepo
    Engine   *service.OfferEngine
    Hub      *realtime.Hub
}

func NewWaitlistHandler(w *repository.WaitlistRepo, eng *service.OfferEngine, hub *realtime.Hub) *WaitlistHandler {
    return &WaitlistHandler{Waitlist: w, Engine: eng, Hub: hub}
}

type waitlistEntryResp struct {
    ID             uint64     `json:"id"`
    VisitID        uint64     `json:"visit_id"`
    DesiredTier    string     `json:"desired_tier"`
    BackupTier     string     `json:"backup_tier"`
    Status         string     `json:"status"`
    RoomID         *uint64    `json:"room_id,omitempty"`
    OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
}

type offerReq struct {
    RoomID uint64 `json:"room_id" validate:"required"`
    Lane   string `json:"lane"`
}

type laneReq struct {
    Lane string `json:"lane"`
}

func toWaitlistResp(e model.WaitlistEntry) waitlistEntryResp {
    return waitlistEntryResp{
        ID:             e.ID,
        VisitID:        e.VisitID,
        DesiredTier:    e.DesiredTier,
        BackupTier:     e.BackupTier,
        Status:         e.Status,
        RoomID:         e.RoomID,
        OfferExpiresAt: e.OfferExpiresAt,
    }
}

// List returns every ACTIVE and OFFERED entry, oldest first.  The
// expiry sweep runs first so no stale OFFERED row ever reaches a
// terminal; entries that lapse during the sweep are announced on the
// requesting lane when one is given.
func (h *WaitlistHandler) List(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    expired, err := h.Engine.ExpireDue(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed"})
    }
    if lane := c.QueryParam("lane"); lane != "" {
        for _, id := range expired {
            h.Hub.Broadcast(realtime.Event{
                Lane:    lane,
                Type:    realtime.EventWaitlistExpired,
                Payload: echo.Map{"waitlist_id": id},
            })
        }
    }

    entries, err := h.Waitlist.ListCurrent(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"waitlist": lo.Map(entries, func(e model.WaitlistEntry, _ int) waitlistEntryResp {
        return toWaitlistResp(e)
    })})
}

// Offer proposes a room to a waitlist entry.  On success the offer
// deadline is returned and both sides of the lane are notified.
func (h *WaitlistHandler) Offer(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waitlist id"})
    }
    var req offerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := c.Validate(&req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    deadline, err := h.Engine.Offer(ctx, id, req.RoomID)
    if err != nil {
        return engineError(c, err)
    }

    if req.Lane != "" {
        h.Hub.Broadcast(realtime.Event{
            Lane: req.Lane,
            Type: realtime.EventWaitlistOffered,
            Payload: echo.Map{
                "waitlist_id":      id,
                "room_id":          req.RoomID,
                "offer_expires_at": deadline,
            },
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"ok": true, "offer_expires_at": deadline})
}

// Cancel withdraws an entry, releasing its hold if one is open.
func (h *WaitlistHandler) Cancel(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid waitlist id"})
    }
    var req laneReq
    _ = c.Bind(&req) // lane is optional; ignore body errors

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if err := h.Engine.Cancel(ctx, id); err != nil {
        return engineError(c, err)
    }

    if req.Lane != "" {
        h.Hub.Broadcast(realtime.Event{
            Lane:    req.Lane,
            Type:    realtime.EventWaitlistCancelled,
            Payload: echo.Map{"waitlist_id": id},
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
