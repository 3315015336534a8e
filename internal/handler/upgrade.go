package handler

import (
    "context"
    "log"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/queue"
    "github.com/lanekeep/venue-checkin/internal/realtime"
    "github.com/lanekeep/venue-checkin/internal/repository"
    "github.com/lanekeep/venue-checkin/internal/service"
)

// UpgradeHandler drives the two-step upgrade flow: fulfill opens a
// pending payment for the fee, complete commits the charge and seats
// the customer once the terminal confirms payment.
type UpgradeHandler struct {
    Engine   *service.OfferEngine
    Waitlist *repository.WaitlistRepo
    Rooms    *repository.RoomRepo
    Hub      *realtime.Hub
}

func NewUpgradeHandler(eng *service.OfferEngine, w *repository.WaitlistRepo, rooms *repository.RoomRepo, hub *realtime.Hub) *UpgradeHandler {
    return &UpgradeHandler{Engine: eng, Waitlist: w, Rooms: rooms, Hub: hub}
}

type fulfillReq struct {
    WaitlistID             uint64 `json:"waitlist_id" validate:"required"`
    RoomID                 uint64 `json:"room_id" validate:"required"`
    AcknowledgedDisclaimer bool   `json:"acknowledged_disclaimer"`
    Lane                   string `json:"lane"`
}

type completeReq struct {
    WaitlistID      uint64 `json:"waitlist_id" validate:"required"`
    PaymentIntentID uint64 `json:"payment_intent_id" validate:"required"`
    Lane            string `json:"lane"`
}

// Fulfill turns an outstanding offer into a pending upgrade payment
// and returns the fee with the original charge breakdown for the
// register display.
func (h *UpgradeHandler) Fulfill(c echo.Context) error {
    var req fulfillReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := c.Validate(&req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    res, err := h.Engine.Fulfill(ctx, req.WaitlistID, req.RoomID, req.AcknowledgedDisclaimer, req.Lane)
    if err != nil {
        return engineError(c, err)
    }

    if req.Lane != "" {
        h.Hub.Broadcast(realtime.Event{
            Lane: req.Lane,
            Type: realtime.EventUpgradeFulfilled,
            Payload: echo.Map{
                "waitlist_id":       req.WaitlistID,
                "room_id":           req.RoomID,
                "payment_intent_id": res.PaymentIntentID,
                "upgrade_fee":       res.UpgradeFeeCents,
            },
        })
    }
    return c.JSON(http.StatusOK, echo.Map{
        "payment_intent_id": res.PaymentIntentID,
        "reference":         res.Reference,
        "upgrade_fee":       res.UpgradeFeeCents,
        "original_charges":  res.OriginalCharges,
        "original_total":    res.OriginalTotalCents,
    })
}

// Complete commits a paid upgrade: charge, FULFILLED entry, released
// hold and OCCUPIED room in one transaction, then fan-out and the
// audit event once the commit is durable.
func (h *UpgradeHandler) Complete(c echo.Context) error {
    var req completeReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := c.Validate(&req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    res, err := h.Engine.Complete(ctx, req.WaitlistID, req.PaymentIntentID)
    if err != nil {
        return engineError(c, err)
    }

    if req.Lane != "" {
        h.Hub.Broadcast(realtime.Event{
            Lane: req.Lane,
            Type: realtime.EventUpgradeCompleted,
            Payload: echo.Map{
                "waitlist_id": req.WaitlistID,
                "room_id":     res.RoomID,
                "amount":      res.AmountCents,
            },
        })
        h.Hub.Broadcast(realtime.Event{
            Lane: req.Lane,
            Type: realtime.EventRoomStatus,
            Payload: echo.Map{
                "room_id": res.RoomID,
                "status":  "OCCUPIED",
            },
        })
    }

    // Audit trail is best effort; the upgrade is already committed.
    go h.publishCompleted(req, res)

    return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *UpgradeHandler) publishCompleted(req completeReq, res *service.CompleteResult) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    ev := queue.UpgradeCompletedEvent{
        WaitlistID:      req.WaitlistID,
        RoomID:          res.RoomID,
        PaymentIntentID: req.PaymentIntentID,
        LaneSessionID:   req.Lane,
        FeeCents:        res.AmountCents,
        CompletedAt:     time.Now().UTC().Format(time.RFC3339),
    }
    if e, err := h.Waitlist.GetByID(ctx, req.WaitlistID); err == nil {
        ev.VisitID = e.VisitID
    }
    if r, err := h.Rooms.GetByID(ctx, res.RoomID); err == nil {
        ev.RoomNumber = r.Number
        ev.RoomKind = r.Kind
    }
    if err := queue.PublishUpgradeCompleted(ctx, ev); err != nil {
        log.Printf("upgrades: publish upgrade.completed failed: %v", err)
    }
}
