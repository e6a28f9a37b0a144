package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/santinotanus/medtrace/internal/buildinfo"
	"github.com/santinotanus/medtrace/internal/client/applock"
	"github.com/santinotanus/medtrace/internal/client/backend"
	"github.com/santinotanus/medtrace/internal/client/biometric"
	"github.com/santinotanus/medtrace/internal/client/cli"
	"github.com/santinotanus/medtrace/internal/client/config"
	"github.com/santinotanus/medtrace/internal/client/localdb"
	"github.com/santinotanus/medtrace/internal/client/repositories/metadata"
	"github.com/santinotanus/medtrace/internal/client/repositories/profiles"
	"github.com/santinotanus/medtrace/internal/client/services"
	"github.com/santinotanus/medtrace/internal/client/session"
	"github.com/santinotanus/medtrace/internal/client/sessionstore"
	"github.com/santinotanus/medtrace/internal/filex"
	"github.com/santinotanus/medtrace/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.LogLevel, os.Stderr)

	if err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return err
	}
	db, err := localdb.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()
	meta := metadata.NewSQLiteRepository(db)

	key, err := sessionstore.LoadOrCreateKey(cfg.KeyFilePath)
	if err != nil {
		return fmt.Errorf("error loading device key: %w", err)
	}

	api, err := backend.New(backend.Options{
		URL:     cfg.BackendURL,
		AnonKey: cfg.AnonKey,
		Timeout: cfg.RequestTimeout,
		Storage: sessionstore.New(meta, key),
		Logger:  logger.With("component", "backend"),
	})
	if err != nil {
		return err
	}
	defer api.Close()

	var pinger backend.Pinger = api
	if cfg.HealthCheckAddr != "" {
		hp, err := backend.NewGRPCHealthPinger(cfg.HealthCheckAddr, "")
		if err != nil {
			return err
		}
		defer hp.Close()
		pinger = hp
	}

	mgr := session.NewManager(api, profiles.NewRepository(api), logger.With("component", "session"))
	if err := mgr.Init(ctx); err != nil {
		logger.Warn(ctx, "could not restore session", "error", err)
	}
	defer mgr.Close()

	passcode := biometric.NewPasscode(meta, cli.SecretPrompt(os.Stdout))

	policy := applock.DefaultPolicy()
	policy.LockDebounce = cfg.LockDebounce
	policy.RetryDelay = cfg.UnlockRetryDelay
	guard := applock.NewGuard(passcode, policy, applock.RealScheduler(), logger.With("component", "applock"))
	defer guard.Close()

	app := cli.NewApp(cli.Deps{
		Config:    cfg,
		Session:   mgr,
		Guard:     guard,
		Unlocker:  passcode,
		Pinger:    pinger,
		Medicines: services.NewMedicineService(api, mgr, logger.With("component", "medicines")),
		Alerts:    services.NewAlertService(api, mgr),
		Reports:   services.NewReportService(api, mgr),
		Stats:     services.NewStatsService(api, mgr, logger.With("component", "stats")),
		Log:       logger,
	})

	app.Run(ctx)
	return nil
}
