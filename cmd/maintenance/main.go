package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/twogether/internal/config"
	"github.com/twogether/internal/db"
	"github.com/twogether/internal/logging"
	"github.com/twogether/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

type runContext struct {
	ctx         context.Context
	maintenance *service.MaintenanceService
	clock       service.Clock
	logger      *zap.Logger
}

type ResetWeeklyCmd struct{}

func (c *ResetWeeklyCmd) Run(rc *runContext) error {
	n, err := rc.maintenance.ResetStaleWeeklyFlags(rc.ctx)
	if err != nil {
		return err
	}
	rc.logger.Info("weekly flags reset", zap.Int("habits", n))
	return nil
}

type ResetTodayCmd struct{}

func (c *ResetTodayCmd) Run(rc *runContext) error {
	n, err := rc.maintenance.ResetTodayFlags(rc.ctx)
	if err != nil {
		return err
	}
	rc.logger.Info("today flags reset", zap.Int("habits", n))
	return nil
}

type PurgeUserCmd struct {
	UID string `arg:"" help:"User id to delete together with all owned documents."`
}

func (c *PurgeUserCmd) Run(rc *runContext) error {
	report, err := rc.maintenance.PurgeUser(rc.ctx, c.UID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

type PurgeTransactionsCmd struct {
	Before string `required:"" help:"Delete ledger entries created before this date (YYYY-MM-DD)."`
}

func (c *PurgeTransactionsCmd) Run(rc *runContext) error {
	_, cutoff, err := service.ParseDateKey(c.Before, rc.clock.Location())
	if err != nil {
		return err
	}
	n, err := rc.maintenance.PurgeTransactionsBefore(rc.ctx, cutoff)
	if err != nil {
		return err
	}
	rc.logger.Info("transactions purged", zap.Int("deleted", n), zap.String("before", c.Before))
	return nil
}

var CLI struct {
	Database  string `help:"SQLite database path." env:"DATABASE_PATH" default:"twogether.db"`
	BatchSize int    `help:"Documents per batch (max 500)." default:"500"`
	LogLevel  string `help:"Log level." env:"LOG_LEVEL" default:"info"`

	ResetWeekly       ResetWeeklyCmd       `cmd:"" help:"Clear weeklyStarAwarded flags awarded before the current week."`
	ResetToday        ResetTodayCmd        `cmd:"" help:"Clear isTodayComplete flags not completed today."`
	PurgeUser         PurgeUserCmd         `cmd:"" help:"Delete a user and every document they own."`
	PurgeTransactions PurgeTransactionsCmd `cmd:"" help:"Delete old ledger entries."`
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	kctx := kong.Parse(&CLI,
		kong.Name("twogether-maintenance"),
		kong.Description("Batch maintenance for the twogether database"),
		kong.UsageOnError(),
	)

	zl, err := logging.New(logging.Config{Level: CLI.LogLevel, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	gdb, err := db.Open(CLI.Database, logger.Default.LogMode(logger.Warn))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := service.NewClock(cfg.Location())
	rc := &runContext{
		ctx:         ctx,
		maintenance: service.NewMaintenanceService(gdb, clock, CLI.BatchSize, nil),
		clock:       clock,
		logger:      zl,
	}

	if err := kctx.Run(rc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
