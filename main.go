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
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fitness-nutrition-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := getDBPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var reports reportCache
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		reports = newRedisReportCache(client, cfg.ReportCacheTTL)
		logger.Info("report cache: redis")
	} else {
		mem := newMemoryReportCache(cfg.ReportCacheTTL)
		mem.startCleanup(time.Minute, ctx.Done())
		reports = mem
		logger.Info("report cache: in-process")
	}

	loginLimiter := newRateLimiter(cfg.LoginRatePerMin, cfg.LoginBurst)
	loginLimiter.startCleanup(time.Minute, ctx.Done())

	h := &Handler{
		db:           pool,
		log:          logger,
		reports:      reports,
		estimator:    newFoodEstimator(cfg),
		loginLimiter: loginLimiter,
	}

	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(recovery(logger), requestLogger(logger), metricsMiddleware())
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
