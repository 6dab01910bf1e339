package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/backup"
	"github.com/canvashq/canvas/internal/config"
	"github.com/canvashq/canvas/internal/database"
	"github.com/canvashq/canvas/internal/logging"
	"github.com/canvashq/canvas/internal/server"
)

func main() {
	configPath := os.Getenv("CANVAS_CONFIG")
	if configPath == "" {
		configPath = "canvas.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level)

	voteBaseCost, err := decimal.NewFromString(cfg.Governance.VoteBaseCost)
	if err != nil {
		logger.Error("invalid vote base cost", "value", cfg.Governance.VoteBaseCost, "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, server.Config{
		VoteBaseCost:    voteBaseCost,
		MaxVoteStrength: cfg.Governance.MaxVoteStrength,
		BackupConfig: backup.Config{
			S3: backup.S3Config{
				Endpoint:  cfg.Backup.S3Endpoint,
				Bucket:    cfg.Backup.S3Bucket,
				Region:    cfg.Backup.S3Region,
				AccessKey: cfg.Backup.S3AccessKey,
				SecretKey: cfg.Backup.S3SecretKey,
			},
			DBPath:        cfg.Database.Path,
			Passphrase:    cfg.Backup.Passphrase,
			ScheduleHour:  cfg.Backup.ScheduleHour,
			RetentionDays: cfg.Backup.RetentionDays,
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Deferred economic config changes activate on a cron sweep.
	sweeper, err := srv.ConfigService().StartSweep(cfg.Economy.SweepSchedule)
	if err != nil {
		logger.Error("start activation sweep failed", "error", err)
		os.Exit(1)
	}

	srv.BackupManager().Start(ctx)

	// Rate-limit bookkeeping cleanup.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("canvas listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	sweepCtx := sweeper.Stop()
	<-sweepCtx.Done()
	srv.BackupManager().Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
