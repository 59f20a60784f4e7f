package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ordercheck-bot-backend/internal/bot"
	"ordercheck-bot-backend/internal/common/config"
	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/common/middleware"
	"ordercheck-bot-backend/internal/features/check"
	"ordercheck-bot-backend/internal/features/checklog"
	qrservice "ordercheck-bot-backend/internal/features/qrsession/service"
	"ordercheck-bot-backend/internal/features/ratelimit"
	userpg "ordercheck-bot-backend/internal/features/user/repository/postgres"
	"ordercheck-bot-backend/internal/platform/db"
	"ordercheck-bot-backend/internal/platform/ghn"
	"ordercheck-bot-backend/internal/platform/ledger"
	"ordercheck-bot-backend/internal/platform/qrlogin"
	"ordercheck-bot-backend/internal/platform/redis"
	"ordercheck-bot-backend/internal/platform/shopee"
	"ordercheck-bot-backend/internal/platform/spx"
	"ordercheck-bot-backend/internal/platform/telegram"
)

func main() {
	cfg := config.Load()
	logger.Init("ordercheck-bot", cfg.Debug)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := db.Bootstrap(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("Failed to bootstrap database schema")
	}

	rdb, err := redis.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer rdb.Close()

	// Platform clients.
	tg := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.SendTimeout)
	shopeeClient := shopee.NewClient(cfg.Shopee.BaseURL, cfg.Shopee.ListTimeout, cfg.Shopee.DetailTimeout, cfg.Shopee.OrderLimit)
	spxClient := spx.NewClient(cfg.SPX.APIURL, cfg.SPX.Timeout)
	ghnClient := ghn.NewClient(cfg.GHN.BaseURL, cfg.GHN.Timeout)
	qrClient := qrlogin.NewClient(cfg.QR.BaseURL, cfg.QR.CallTimeout)
	ledgerClient := ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.Timeout)

	// Storage and feature services.
	users := userpg.NewRepository(pool)
	logs := checklog.NewPostgresRepository(pool)

	flusher := checklog.NewFlusher(logs, cfg.Logbatch.Size, cfg.Logbatch.Interval)
	flusher.Start()
	defer flusher.Stop()

	limiter := ratelimit.NewService(users, logs, cfg.Limits.SpamPerMinute, ratelimit.Ladder{
		Band1: cfg.Limits.Band1,
		Band2: cfg.Limits.Band2,
		Band3: cfg.Limits.Band3,
	})
	limiter.Start(time.Minute)
	defer limiter.Stop()

	orderCache := check.NewCache(rdb, cfg.Cache.OrderTTL)
	checks := check.NewService(
		users, flusher, limiter,
		shopeeClient, shopeeClient, spxClient, ghnClient,
		orderCache,
		check.Prices{
			OrderCheck: int64(cfg.Prices.OrderCheck),
			SPXCheck:   int64(cfg.Prices.SPXCheck),
			GHNCheck:   int64(cfg.Prices.GHNCheck),
			PhoneCheck: int64(cfg.Prices.PhoneCheck),
		},
		cfg.Limits.FreePerDay, cfg.Limits.MaxPhonesPerMsg,
		cfg.Shopee.ProbeCookie,
	)

	qrSessions := qrservice.NewService(qrClient, ledgerClient, logs,
		cfg.QR.PollInterval, cfg.QR.SessionTTL, int64(cfg.Prices.QRLogin))
	qrSessions.Start(time.Minute)
	defer qrSessions.Stop()

	broadcaster := bot.NewBroadcaster(tg, users, rdb, cfg.Broadcast.Cooldown)

	handler := bot.NewHandler(tg, users, checks, qrSessions, ledgerClient, broadcaster, cfg.Telegram.AdminIDs)
	qrSessions.SetNotifier(handler)

	// HTTP server.
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger())
	handler.Register(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Webhook server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}
