package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Safii/internal/emergency"
	handlers "Safii/internal/handler"
	"Safii/internal/listeners"
	"Safii/internal/models"
	"Safii/internal/projector"
	"Safii/internal/store"
	"Safii/internal/tracking"
	"Safii/pkg/cache"
	"Safii/pkg/config"
	"Safii/pkg/logger"
	"Safii/pkg/metrics"
	"Safii/pkg/middleware"
	"Safii/pkg/notification"
	"Safii/pkg/scheduler"
	"Safii/pkg/util"
	"Safii/pkg/websocket"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log)
	defer logger.Sync()

	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("open database", zap.Error(err))
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.EmergencyContact{},
		&models.TrackingSession{},
		&models.SharingSession{},
		&models.EmergencyAlert{},
		&middleware.DeviceAudit{},
	); err != nil {
		logger.Error("migrate", zap.Error(err))
		os.Exit(1)
	}

	appCache, err := cache.NewCache(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
	})
	if err != nil {
		logger.Error("init cache", zap.Error(err))
		os.Exit(1)
	}
	defer appCache.Close()

	push := notification.NewExpoPush(cfg.Push, nil)
	sms := notification.NewSMS(cfg.SMS, nil)

	feed := store.NewFeed()
	manager := tracking.NewManager(db, appCache, cfg.GraceThreshold)
	coordinator := emergency.NewCoordinator(db, feed, cfg.ReminderInterval, cfg.MaxNotifications)
	manager.SetNotifier(coordinator)
	proj := projector.New(feed)
	hub := websocket.NewHub(websocket.DefaultConfig())

	listeners.InitAlertListeners(db, push, sms, manager, coordinator)

	// rebuild the change feed from persisted alerts so streams opened right
	// after a restart still see live emergencies
	if err := coordinator.PrimeFeed(context.Background()); err != nil {
		logger.Warn("prime alert feed", zap.Error(err))
	}

	sched := scheduler.New()
	sched.Every(cfg.LivenessSweep, scheduler.FuncJob(func(ctx context.Context) {
		manager.SweepOnce(ctx, time.Now())
	}))

	reminder := emergency.NewReminder(coordinator, push, sms, appCache)
	cr := scheduler.NewCron(nil)
	if _, err := cr.Add(cfg.ReminderSchedule, reminder); err != nil {
		logger.Error("schedule reminder scan", zap.Error(err))
		os.Exit(1)
	}
	cr.Start()

	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sessions.Sessions("safii_session", cookie.NewStore([]byte(cfg.SessionSecret))))
	r.Use(metrics.Middleware())

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:      cfg.RateLimit,
		SkipPaths: []string{"/health", "/metrics", cfg.APIPrefix + "/stream/"},
	}, nil)
	r.Use(limiter.Middleware())

	h := handlers.New(db, manager, coordinator, proj, hub)
	h.RegisterRoutes(r, cfg.APIPrefix, middleware.AuthRequired(db))
	r.GET("/metrics", metrics.Handler())

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	sched.Stop()
	cr.Stop()
	hub.Close()
	feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
