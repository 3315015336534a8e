package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/config"
    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/repository"
    "github.com/lanekeep/venue-checkin/internal/utils"
)

// AuthHandler bundles dependencies for staff auth endpoints: PIN
// login, identity lookup, and manager-only staff provisioning.
type AuthHandler struct {
    Cfg   config.Config
    Staff *repository.StaffRepo
}

func NewAuthHandler(cfg config.Config, s *repository.StaffRepo) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Staff: s}
}

// ----- DTOs -----

type loginReq struct {
    Name string `json:"name" validate:"required"`
    PIN  string `json:"pin" validate:"required"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type staffPart struct {
    ID   uint64 `json:"id"`
    Name string `json:"name"`
    Role string `json:"role"`
}
type authResp struct {
    Staff  staffPart `json:"staff"`
    Access tokenPart `json:"access"`
}

// Login: verify the staff PIN and return a short-lived access token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if err := c.Validate(&req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s, err := h.Staff.GetByName(ctx, req.Name)
    if err != nil {
        if err == repository.ErrStaffNotFound {
            // Same body as a bad PIN so names cannot be probed.
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !utils.VerifyPIN(s.PinHash, req.PIN) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, s.ID, s.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
    }

    return c.JSON(http.StatusOK, authResp{
        Staff:  staffPart{ID: s.ID, Name: s.Name, Role: s.Role},
        Access: tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Me returns the authenticated staff member's record.  The row is
// re-read so a renamed or deleted account is reflected immediately
// rather than at token expiry.
func (h *AuthHandler) Me(c echo.Context) error {
    id, ok := contextStaffID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s, err := h.Staff.GetByID(ctx, id)
    if err != nil {
        if err == repository.ErrStaffNotFound {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    return c.JSON(http.StatusOK, staffPart{ID: s.ID, Name: s.Name, Role: s.Role})
}

// contextStaffID extracts the numeric staff ID the JWT middleware
// stored on the context.  JWT claims decode numbers as float64.
func contextStaffID(c echo.Context) (uint64, bool) {
    switch v := c.Get("staff_id").(type) {
    case float64:
        return uint64(v), true
    case uint64:
        return v, true
    case string:
        if n, err := strconv.ParseUint(v, 10, 64); err == nil {
            return n, true
        }
    }
    return 0, false
}

type createStaffReq struct {
    Name string `json:"name" validate:"required"`
    Role string `json:"role" validate:"required,oneof=EMPLOYEE MANAGER"`
    PIN  string `json:"pin" validate:"required,min=4"`
}

// CreateStaff provisions a new staff account.  Managers only; the
// PIN is stored as a bcrypt hash at the configured cost and never
// returned.
func (h *AuthHandler) CreateStaff(c echo.Context) error {
    var req createStaffReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if err := c.Validate(&req); err != nil {
        return err
    }

    hash, err := utils.HashPIN(req.PIN, h.Cfg.BcryptCost)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash pin failed"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s := &model.Staff{Name: req.Name, Role: req.Role, PinHash: hash}
    if err := h.Staff.Create(ctx, s); err != nil {
        if err == repository.ErrStaffExists {
            return c.JSON(http.StatusConflict, echo.Map{"error": "staff_exists"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
    }
    return c.JSON(http.StatusCreated, staffPart{ID: s.ID, Name: s.Name, Role: s.Role})
}
