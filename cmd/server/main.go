package main // Entry point package

import (
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/lanekeep/venue-checkin/internal/config"
    "github.com/lanekeep/venue-checkin/internal/database"
    "github.com/lanekeep/venue-checkin/internal/handler"
    appmw "github.com/lanekeep/venue-checkin/internal/middleware"
    "github.com/lanekeep/venue-checkin/internal/queue"
    "github.com/lanekeep/venue-checkin/internal/realtime"
    "github.com/lanekeep/venue-checkin/internal/repository"
    "github.com/lanekeep/venue-checkin/internal/router"
    "github.com/lanekeep/venue-checkin/internal/service"
    "github.com/lanekeep/venue-checkin/internal/utils"
)

func main() {
    // .env is optional; real deployments set the environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("server: open database: %v", err)
    }
    defer db.Close()

    // Repositories and the transactional store.
    rooms := repository.NewRoomRepo(db)
    waitlist := repository.NewWaitlistRepo(db)
    reservations := repository.NewReservationRepo(db)
    payments := repository.NewPaymentRepo(db)
    staff := repository.NewStaffRepo(db)
    store := repository.NewSQLStore(db, rooms, waitlist, reservations, payments)

    pricer := service.NewHTTPPricer(cfg.PricingURL)
    engine := service.NewOfferEngine(store, pricer)

    hub := realtime.NewHub()
    sockets := realtime.NewSocketHandler(hub, func(token, lane string) error {
        claim, err := utils.VerifyKioskToken(cfg.JWTSecret, token)
        if err != nil {
            return err
        }
        // The token is bound to the lane it was provisioned for.
        if claim != lane {
            return utils.ErrKioskToken
        }
        return nil
    })

    // Redis is optional: rate limiting and response caching degrade
    // to no-ops when it is unreachable.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Println("server: redis unavailable, rate limiting and caching disabled")
    }
    rlConf := config.LoadRateLimitConfig()
    cacheConf := config.LoadCacheConfig()

    e := echo.New()
    e.HideBanner = true
    e.Validator = handler.NewValidator()
    e.Use(appmw.NewTokenBucket(rlConf, rdb))

    var cacheMW echo.MiddlewareFunc
    if rdb != nil && cacheConf.Enabled {
        cacheMW = appmw.NewRedisCache(cacheConf, rdb)
    }

    router.RegisterRoutes(e)
    router.RegisterAuth(e, handler.NewAuthHandler(cfg, staff), cfg.JWTSecret)
    router.RegisterRooms(e, handler.NewRoomHandler(rooms, store, hub), cfg.JWTSecret, cacheMW)
    router.RegisterWaitlist(e, handler.NewWaitlistHandler(waitlist, engine, hub), cfg.JWTSecret)
    router.RegisterUpgrades(e,
        handler.NewUpgradeHandler(engine, waitlist, rooms, hub),
        handler.NewPaymentHandler(db, payments),
        cfg.JWTSecret)
    router.RegisterLanes(e, handler.NewLaneHandler(cfg), cfg.JWTSecret)
    router.RegisterRealtime(e, sockets)

    // Audit-trail consumer runs for the life of the process and
    // reconnects on its own.
    go func() {
        if err := queue.StartUpgradeConsumer(); err != nil {
            log.Printf("server: upgrade consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
