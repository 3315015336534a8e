package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/handler"
    "github.com/lanekeep/venue-checkin/internal/middleware"
    "github.com/lanekeep/venue-checkin/internal/model"
    "github.com/lanekeep/venue-checkin/internal/realtime"
)

// RegisterRoutes registers routes that do not require authentication
// on the provided Echo instance.  Currently it exposes only a health
// check.
func RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the staff auth surface.  Login lives under
// /v1/auth and needs no token; /v1/me requires a valid access token
// with a known staff role, and provisioning new staff is reserved
// for managers.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    g := e.Group("/v1/auth")
    g.POST("/login", a.Login)

    auth := e.Group("/v1")
    auth.Use(middleware.JWTAuth(jwtSecret))
    auth.Use(middleware.RequireRole(model.RoleEmployee, model.RoleManager))
    auth.GET("/me", a.Me)

    mgr := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleManager),
    )
    mgr.POST("/staff", a.CreateStaff)
}

// RegisterRooms registers the room board and status transitions.
// Reads are open to both staff roles; the cache middleware (when
// enabled) belongs on the GET only, so writes always hit the store.
func RegisterRooms(e *echo.Echo, h *handler.RoomHandler, jwtSecret string, cache echo.MiddlewareFunc) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleEmployee, model.RoleManager),
    )
    if cache != nil {
        g.GET("/rooms", h.List, cache)
    } else {
        g.GET("/rooms", h.List)
    }
    g.POST("/rooms/:id/status", h.UpdateStatus)
}

// RegisterWaitlist registers waitlist reads, offers and cancellation.
// Offers are restricted to staff; both roles may offer since the
// register employee drives the flow.
func RegisterWaitlist(e *echo.Echo, h *handler.WaitlistHandler, jwtSecret string) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleEmployee, model.RoleManager),
    )
    g.GET("/waitlist", h.List)
    g.POST("/waitlist/:id/offer", h.Offer)
    g.POST("/waitlist/:id/cancel", h.Cancel)
}

// RegisterUpgrades registers the fulfill/complete pair and the
// payment intent callbacks.
func RegisterUpgrades(e *echo.Echo, u *handler.UpgradeHandler, p *handler.PaymentHandler, jwtSecret string) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleEmployee, model.RoleManager),
    )
    g.POST("/upgrades/fulfill", u.Fulfill)
    g.POST("/upgrades/complete", u.Complete)
    g.GET("/payments/:id", p.Get)
    g.POST("/payments/:id/confirm", p.Confirm)
    g.POST("/payments/:id/cancel", p.Cancel)
}

// RegisterLanes registers lane provisioning.  Minting a kiosk token
// is a setup action reserved for managers.
func RegisterLanes(e *echo.Echo, h *handler.LaneHandler, jwtSecret string) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleManager),
    )
    g.POST("/lanes/token", h.ProvisionToken)
}

// RegisterRealtime registers the lane websocket endpoint.  Auth is
// carried on the kiosk-token sub-protocol, not a JWT header, so the
// route stays outside the staff middleware chain.
func RegisterRealtime(e *echo.Echo, s *realtime.SocketHandler) {
    e.GET("/v1/lanes/ws", s.Serve)
}
