package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twogether/internal/config"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/handler"
	"github.com/twogether/internal/jobs"
	"github.com/twogether/internal/logging"
	"github.com/twogether/internal/realtime"
	"github.com/twogether/internal/router"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
		Development: !strings.EqualFold(cfg.GinMode, gin.ReleaseMode),
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	gdb, err := db.Open(cfg.DatabasePath, logger.Default.LogMode(logger.Warn))
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := db.EnsureAdmin(gdb, cfg.SuperAdminEmail, cfg.SuperAdminPassword); err != nil {
		zl.Fatal("failed to ensure admin account", zap.Error(err))
	}

	hub := realtime.NewHub()

	api := handler.NewAPI(gdb, handler.Options{Config: cfg, Hub: hub, Logger: zl})

	var scheduler *jobs.Scheduler
	if cfg.EnableJobs {
		scheduler = jobs.New(cfg.Location(), zl.Named("jobs"))
		for _, job := range jobs.MaintenanceJobs(api.Maintenance()) {
			if err := scheduler.Add(job); err != nil {
				zl.Fatal("failed to schedule job", zap.String("job", job.Name), zap.Error(err))
			}
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.SetupRouter(api, cfg, zl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to run server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if scheduler != nil {
		if err := scheduler.Stop(ctx); err != nil {
			zl.Warn("scheduler stop timed out", zap.Error(err))
		}
	}
	// SSE 连接需要先关闭订阅才能让 Shutdown 返回
	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
}
