package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// pedometerRecorder accepts device step readings.
type pedometerRecorder interface {
	Record(ctx context.Context, userID int, date time.Time, r pedometerReading) error
}

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	db     *pgxpool.Pool
	rdb    *redis.Client
	cfg    Config
	logger *zap.Logger
	now    clock

	profiles  profileStore
	reminders reminderStore
	users     *userRegistry
	scheduler *notificationScheduler
	center    notificationCenter
	readings  pedometerRecorder
	hub       *eventHub
}

// location is the configured calendar zone.
func (h *Handler) location() *time.Location {
	return h.cfg.Location()
}

func (h *Handler) clockNow() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// newDBPool creates a connection pool. We use a pool (not a single conn) because
// Neon closes idle connections after ~5 minutes.
func newDBPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from Neon's server-side prepared statement cache after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return pool, nil
}

// healthz pings the backing stores. GET /healthz (public).
func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c, 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ok"}
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status["db"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	c.JSON(code, status)
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	router.Use(metricsMiddleware())

	// Public routes
	router.POST("/api/login", h.login)
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.registerAPI(router.Group("/api", h.authMiddleware()))
}

// registerAPI registers the authenticated routes on a group that sets user_id.
func (h *Handler) registerAPI(api *gin.RouterGroup) {
	api.GET("/settings", h.getUserSettings)
	api.PATCH("/settings", h.patchUserSettings)

	api.GET("/activity", h.getActivityWindow)
	api.GET("/activity/week", h.getActivityWeek)
	api.GET("/activity/quarter", h.getActivityQuarter)
	api.GET("/activity/day/:date", h.getActivityDay)
	api.GET("/activity/share", h.getActivityShare)
	api.POST("/activity/steps", h.recordSteps)
	api.POST("/activity/pedometer", h.recordPedometer)

	api.GET("/meals", h.getMeals)
	api.POST("/meals/refresh", h.refreshMeals)
	api.POST("/meals/:id/toggle", h.toggleMeal)

	api.GET("/reminders", h.getReminders)
	api.PUT("/reminders", h.putReminders)
	api.GET("/reminders/pending", h.getPendingReminders)

	api.GET("/progress", h.getProgressLog)
	api.POST("/progress", h.upsertProgressEntry)
	api.POST("/progress/hydration", h.adjustHydration)
	api.PUT("/progress/:id", h.updateProgressEntry)
	api.DELETE("/progress/:id", h.deleteProgressEntry)

	api.GET("/workouts", h.getWorkoutPlan)
	api.GET("/workouts/today", h.getWorkoutDay)

	api.GET("/events", h.streamEvents)
}
