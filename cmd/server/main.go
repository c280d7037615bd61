package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/opay-dz/opay/internal/admin"
	"github.com/opay-dz/opay/internal/alerts"
	"github.com/opay-dz/opay/internal/approvals"
	"github.com/opay-dz/opay/internal/auth"
	"github.com/opay-dz/opay/internal/betting"
	"github.com/opay-dz/opay/internal/config"
	"github.com/opay-dz/opay/internal/db"
	"github.com/opay-dz/opay/internal/giftcard"
	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/merchant"
	"github.com/opay-dz/opay/internal/messaging"
	"github.com/opay-dz/opay/internal/metrics"
	mware "github.com/opay-dz/opay/internal/middleware"
	"github.com/opay-dz/opay/internal/p2p"
	"github.com/opay-dz/opay/internal/realtime"
	"github.com/opay-dz/opay/internal/referral"
	"github.com/opay-dz/opay/internal/rpc"
	"github.com/opay-dz/opay/internal/scraper"
	"github.com/opay-dz/opay/internal/settings"
	"github.com/opay-dz/opay/internal/telegram"
	"github.com/opay-dz/opay/internal/user"
	"github.com/opay-dz/opay/internal/verification"
	"github.com/opay-dz/opay/internal/wallet"
)

func main() {
	cfg := config.Load()
	logging.Configure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer pool.Close()
	db.EnsureSchema(ctx, pool)

	platform := settings.NewStore(pool)
	if err := platform.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("platform settings not loaded, using defaults")
	}

	// Realtime fan-out: NATS when configured so several instances share events
	var bus realtime.Bus = realtime.NewLocalBus()
	if cfg.NATSURL != "" {
		nb, err := realtime.DialNATS(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("nats unavailable")
		}
		bus = nb
	}
	defer bus.Close()

	// Telegram relay behind the asynq worker
	var sender telegram.Sender
	if cfg.TelegramToken != "" {
		bs, err := telegram.NewBotSender(cfg.TelegramToken, cfg.TelegramAPIURL)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram bot setup failed")
		}
		sender = bs
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, admin notifications are disabled")
	}
	relay := telegram.NewRelay(sender, cfg.TelegramChatID, cfg.TelegramAdminChatID)
	processor := alerts.NewProcessor(cfg.RedisAddr, relay)
	if err := processor.Start(); err != nil {
		log.Error().Err(err).Str("redis", cfg.RedisAddr).Msg("notification worker not running")
	}
	defer processor.Close()

	// Services
	p2pSvc := p2p.NewService(p2p.NewPGStore(pool), platform, bus, processor)
	sweeper := p2p.StartSweeper(p2pSvc, cfg.OrderSweepInterval)
	approvalSvc := approvals.NewService(approvals.NewPGStore(pool), bus, processor)
	referralSvc := referral.NewService(pool, platform, processor)
	bettingSvc := betting.NewService(pool)
	giftSvc := giftcard.NewService(pool, processor)
	merchantSvc := merchant.NewService(pool, platform, processor)

	var scrapeCache *scraper.Cache
	if cfg.ScrapeCachePath != "" {
		scrapeCache, err = scraper.OpenCache(cfg.ScrapeCachePath, cfg.ScrapeCacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("scrape cache disabled")
			scrapeCache = nil
		} else {
			if n, err := scrapeCache.Prune(time.Now()); err == nil && n > 0 {
				log.Info().Int("pruned", n).Msg("expired scrape results removed")
			}
			defer scrapeCache.Close()
		}
	}
	scrapeSvc := scraper.NewService(scraper.NewClient(cfg.ScraperAPIURL, cfg.ScraperAPIKey), scrapeCache)

	dispatcher := rpc.NewDispatcher(rpc.Deps{
		Approvals: approvalSvc,
		Betting:   bettingSvc,
		GiftCards: giftSvc,
		Referrals: referralSvc,
	})
	hub := messaging.NewHub(bus, cfg.CORSOrigins)

	e := echo.New()
	e.HideBanner = true
	e.Validator = mware.NewValidator()

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(logging.RequestLogger())
	e.Use(scraper.CORS(cfg.CORSOrigins))

	// Health and readiness
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "opay"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWT(cfg.JWTSecret))

	merchants := api.Group("/merchant", mware.RequireRoles(mware.RoleMerchant))

	// Admin routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWT(cfg.JWTSecret))
	adminGroup.Use(mware.AdminGuard)

	auth.NewHandler(pool, cfg.JWTSecret, cfg.TokenTTL, cfg.AdminBootstrapSecret, referralSvc).
		Register(authGroup, api, adminGroup)
	user.NewHandler(pool, p2pSvc).Register(api)
	admin.NewHandler(pool, approvalSvc, referralSvc).Register(adminGroup)
	wallet.NewHandler(pool, platform, processor, bus).Register(api, adminGroup)
	p2p.NewHandler(p2pSvc).Register(api, adminGroup)
	approvals.NewHandler(approvalSvc).Register(api, adminGroup)
	merchant.NewHandler(merchantSvc).Register(merchants, adminGroup)
	giftcard.NewHandler(giftSvc).Register(api, adminGroup)
	referral.NewHandler(referralSvc).Register(api, adminGroup)
	betting.NewHandler(bettingSvc).Register(api)
	dispatcher.Register(api)
	scraper.NewHandler(scrapeSvc).Register(api)
	verification.NewHandler(verification.Storage{Root: cfg.StorageDir}, approvalSvc).Register(api, adminGroup)

	alerts.NewHandler(pool).Register(api)
	api.POST("/functions/telegram-notify", telegram.NewHandler(relay).Notify)

	chat := messaging.NewHandler(hub, p2pSvc)
	api.POST("/p2p/orders/:id/messages", chat.SendMessage)
	api.GET("/p2p/orders/:id/messages", chat.ListMessages)
	api.GET("/ws/orders/:id", chat.OrderWS)
	api.GET("/ws/admin", chat.AdminWS, mware.AdminGuard)

	// Start server
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server starting")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := sweeper.Stop(); err != nil {
		log.Error().Err(err).Msg("sweeper stop")
	}
}
