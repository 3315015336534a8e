package handler

import (
    "context"
    "database/sql"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/repository"
)

// PaymentHandler is the stand-in for the payment terminal callback:
// it flips a PENDING intent to PAID or CANCELLED.  The status change
// runs with an expected-from guard so a terminal retry or a race
// with a cancellation cannot double-apply.
type PaymentHandler struct {
    DB       *sql.DB
    Payments *repository.PaymentRepo
}

func NewPaymentHandler(db *sql.DB, p *repository.PaymentRepo) *PaymentHandler {
    return &PaymentHandler{DB: db, Payments: p}
}

func (h *PaymentHandler) transition(c echo.Context, to string) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid intent id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    tx, err := h.DB.BeginTx(ctx, nil)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "begin tx failed"})
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    intent, err := h.Payments.GetIntentByIDTx(ctx, tx, id)
    if err != nil {
        return engineError(c, err)
    }
    if intent.Status == to {
        // Terminal retry; report success without touching the row.
        return c.JSON(http.StatusOK, echo.Map{"ok": true, "status": to})
    }
    if err := h.Payments.UpdateIntentStatusTx(ctx, tx, id, model.PaymentPending, to); err != nil {
        return engineError(c, err)
    }
    if err := tx.Commit(); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
    }
    committed = true
    return c.JSON(http.StatusOK, echo.Map{"ok": true, "status": to})
}

// Get returns the current state of a payment intent.  The register
// polls this while the terminal processes the fee.
func (h *PaymentHandler) Get(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid intent id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    intent, err := h.Payments.GetIntentByID(ctx, id)
    if err != nil {
        return engineError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":           intent.ID,
        "reference":    intent.Reference,
        "waitlist_id":  intent.WaitlistID,
        "status":       intent.Status,
        "amount_cents": intent.AmountCents,
    })
}

// Confirm marks a pending intent PAID.
func (h *PaymentHandler) Confirm(c echo.Context) error {
    return h.transition(c, model.PaymentPaid)
}

// Cancel marks a pending intent CANCELLED.
func (h *PaymentHandler) Cancel(c echo.Context) error {
    return h.transition(c, model.PaymentCancelled)
}
