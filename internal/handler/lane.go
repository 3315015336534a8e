package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/config"
    "github.com/lanekeep/venue-checkin/internal/utils"
)

// LaneHandler provisions kiosk tokens for lane terminals.  A token
// is minted once when a lane is set up and stored on the terminal;
// it rides the websocket handshake as a sub-protocol afterwards.
type LaneHandler struct {
    Cfg config.Config
}

func NewLaneHandler(cfg config.Config) *LaneHandler {
    return &LaneHandler{Cfg: cfg}
}

type laneTokenReq struct {
    Lane string `json:"lane" validate:"required"`
}

// ProvisionToken mints a kiosk token for the given lane.  Managers
// only; handing this token to a terminal authorizes it to open lane
// channels until the token expires.
func (h *LaneHandler) ProvisionToken(c echo.Context) error {
    var req laneTokenReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Lane = strings.TrimSpace(req.Lane)
    if err := c.Validate(&req); err != nil {
        return err
    }

    token, err := utils.NewKioskToken(h.Cfg.JWTSecret, req.Lane, h.Cfg.KioskTokenTTLDays)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
    }
    return c.JSON(http.StatusCreated, echo.Map{"lane": req.Lane, "token": token})
}
