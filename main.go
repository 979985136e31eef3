package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.AppEnv)
	defer log.Sync()

	log.Info("Starting getfit-go-api...",
		zap.String("env", cfg.AppEnv),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("timezone", cfg.Location().String()),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newDBPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()
	log.Info("DB pool ready")

	changes := newObservable[changeEvent]()
	store := newPGStore(pool)

	// Redis backs alert delivery and device readings. Without it, alerts stay
	// in process and the step sensor is reported as unavailable.
	var (
		rdb      *redis.Client
		center   notificationCenter = newMemNotificationCenter()
		sensor   pedometer
		readings pedometerRecorder
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		center = newRedisNotificationCenter(rdb)
		p := newRedisPedometer(rdb, cfg.Location())
		sensor, readings = p, p
		log.Info("Redis ready")
	} else {
		log.Warn("Redis disabled: reminders kept in memory, no live step data")
	}

	var placeholders activitySource = newRandomActivitySource(uint64(time.Now().UnixNano()))
	if cfg.Placeholders == "zero" {
		placeholders = zeroActivitySource{}
	}

	users := newUserRegistry(registryDeps{
		Profiles:     store,
		Activity:     store,
		Meals:        store,
		Sensor:       sensor,
		Placeholders: placeholders,
		Location:     cfg.Location(),
		Changes:      changes,
		Logger:       log,
	})
	scheduler := newNotificationScheduler(center, cfg.RescheduleDebounce, changes, log)
	hub := newEventHub(log)
	detach := hub.Attach(changes)
	defer detach()

	go users.RunRefresher(ctx, cfg.RefreshInterval)

	if cfg.AppEnv != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetTrustedProxies(nil)

	h := &Handler{
		db:        pool,
		rdb:       rdb,
		cfg:       cfg,
		logger:    log,
		profiles:  store,
		reminders: store,
		users:     users,
		scheduler: scheduler,
		center:    center,
		readings:  readings,
		hub:       hub,
	}
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down getfit-go-api gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	scheduler.Flush(shutdownCtx)

	log.Info("getfit-go-api shutdown complete")
}
