package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Handler holds shared dependencies (db pool, caches, config) for all route handlers.
type Handler struct {
	db           *pgxpool.Pool
	log          *zap.Logger
	reports      reportCache
	estimator    *foodEstimator
	loginLimiter *rateLimiter
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same helpers
// work inside and outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Scan errors other than ErrNoRows are logged (usually struct/column mismatches).
func queryOne[T any](ctx context.Context, q querier, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		zap.L().Error("query failed", zap.String("helper", "queryOne"), zap.Error(err))
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && err != pgx.ErrNoRows {
		zap.L().Error("scan failed", zap.String("helper", "queryOne"), zap.Error(err))
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, q querier, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		zap.L().Error("query failed", zap.String("helper", "queryMany"), zap.Error(err))
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		zap.L().Error("scan failed", zap.String("helper", "queryMany"), zap.Error(err))
	}
	return results, err
}

// queryScalar runs a query returning a single column and scans it into T.
func queryScalar[T any](ctx context.Context, q querier, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return pgx.CollectOneRow(rows, pgx.RowTo[T])
}

// withTx runs fn inside a transaction, committing when fn returns nil.
func (h *Handler) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, h.db, fn)
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool. We use a pool (not a single conn) because
// managed Postgres providers close idle connections after a few minutes.
func getDBPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// healthz reports liveness plus database reachability.
func (h *Handler) healthz(c *gin.Context) {
	if err := h.db.Ping(c); err != nil {
		apiError(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(metricsHandler()))
	router.POST("/api/login", h.loginLimiter.middleware(), h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())

	api.GET("/foods", h.searchFoods)
	api.POST("/foods", h.createFood)
	api.POST("/foods/estimate", h.estimateFood)
	api.GET("/foods/:id", h.getFood)
	api.PUT("/foods/:id", h.updateFood)
	api.DELETE("/foods/:id", h.deleteFood)

	api.GET("/intake", h.getIntakeDay)
	api.POST("/intake", h.createIntakeEntry)
	api.PUT("/intake/:id", h.updateIntakeEntry)
	api.DELETE("/intake/:id", h.deleteIntakeEntry)

	api.GET("/goals/current", h.getCurrentGoal)
	api.GET("/goals/history", h.getGoalHistory)
	api.POST("/goals", h.createGoal)
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)

	api.GET("/reports/daily", h.getDailyReport)
	api.GET("/reports/weekly", h.getWeeklyReport)
	api.GET("/reports/monthly", h.getMonthlyReport)
	api.GET("/reports/rolling", h.getRollingReport)
	api.GET("/reports/trend", h.getTrendReport)
	api.GET("/reports/adherence", h.getAdherenceReport)

	api.GET("/audit", h.getAuditLog)
}
