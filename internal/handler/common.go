package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/repository"
    "github.com/lanekeep/venue-checkin/internal/service"
)

// engineError maps offer-engine and repository failures to structured
// error bodies keyed by error kind, so every terminal renders the
// same failure the same way.
func engineError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, repository.ErrWaitlistNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "waitlist_not_found"})
    case errors.Is(err, repository.ErrRoomNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "room_not_found"})
    case errors.Is(err, repository.ErrIntentNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "payment_intent_not_found"})
    case errors.Is(err, service.ErrUnitAlreadyReserved):
        return c.JSON(http.StatusConflict, echo.Map{"error": "unit_already_reserved"})
    case errors.Is(err, service.ErrWaitlistClosed):
        return c.JSON(http.StatusConflict, echo.Map{"error": "waitlist_closed"})
    case errors.Is(err, service.ErrNotOffered):
        return c.JSON(http.StatusConflict, echo.Map{"error": "not_offered"})
    case errors.Is(err, service.ErrOfferExpired):
        return c.JSON(http.StatusConflict, echo.Map{"error": "offer_expired"})
    case errors.Is(err, service.ErrAlreadyFulfilled):
        return c.JSON(http.StatusConflict, echo.Map{"error": "already_fulfilled"})
    case errors.Is(err, service.ErrDisclaimerRequired):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "disclaimer_required"})
    case errors.Is(err, service.ErrPaymentNotConfirmed):
        return c.JSON(http.StatusConflict, echo.Map{"error": "payment_not_confirmed"})
    case errors.Is(err, service.ErrIntentMismatch):
        return c.JSON(http.StatusConflict, echo.Map{"error": "payment_intent_mismatch"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
}
