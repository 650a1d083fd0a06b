package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"schoolsync-backend/lib/configutil"
	"schoolsync-backend/lib/scrapers/compass"
	"schoolsync-backend/lib/serviceutil"
	"schoolsync-backend/lib/telemetry"
	"schoolsync-backend/services/ingest"
	ingestdb "schoolsync-backend/services/ingest/db"
	"schoolsync-backend/services/keychain"
	keychaindb "schoolsync-backend/services/keychain/db"
	"schoolsync-backend/services/sync"

	"github.com/robfig/cron/v3"
)

func main() {
	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(false)
	tel, err := telemetry.SetupFromEnv(ctx, "syncd")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to set up telemetry", err)
	}
	defer tel.Shutdown(context.Background())

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Schedule == "" {
		config.Schedule = "0 * * * *"
	}

	database, err := config.Database.OpenDB(ingestdb.Schema + "\n" + keychaindb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	defer database.Close()

	service := sync.NewService(
		sync.Options{
			BaseUrl: config.Portal.BaseUrl,
			Mode:    compass.Mode(config.Portal.Mode),
			Browser: compass.BrowserOptions{
				ProfileDir: config.Portal.ProfileDir,
				Headless:   config.Portal.Headless,
			},
			MockDataDir: config.Portal.MockDataDir,
			DaysPast:    config.Portal.DaysPast,
			DaysFuture:  config.Portal.DaysFuture,
			Limit:       config.Portal.Limit,
		},
		keychain.NewService(database),
		ingest.NewService(database),
	)

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute*10)
		defer cancel()

		err := service.Sync(runCtx)
		if err != nil {
			slog.ErrorContext(runCtx, "sync pass failed", "err", err)
			return
		}
		_, err = service.Process(runCtx)
		if err != nil {
			slog.ErrorContext(runCtx, "normalization pass failed", "err", err)
		}
	}

	slog.Info("running initial sync pass")
	run()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(config.Schedule, run)
	if err != nil {
		serviceutil.Fatal("invalid schedule expression", err)
	}
	scheduler.Start()
	slog.Info("scheduler started", "schedule", config.Schedule)

	<-ctx.Done()
	slog.Info("shutting down")
	<-scheduler.Stop().Done()
}
