// fieldwork-sync mirrors organizations, programs and team assignments to
// the external Track tables service on a cron schedule.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/fieldwork/pkg/config"
	"github.com/platinummonkey/fieldwork/pkg/observability"
	"github.com/platinummonkey/fieldwork/pkg/storage/postgres"
	"github.com/platinummonkey/fieldwork/pkg/track"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

func main() {
	runOnce := flag.Bool("run-once", false, "Run one sync pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Track.Enabled {
		log.Fatal("Track sync is not enabled; set FIELDWORK_TRACK_ENABLED=true")
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Logging.Level), os.Stdout)

	connMgr, err := postgres.NewConnectionManager(cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer connMgr.Close()

	store := workflow.NewStore(connMgr.Primary())
	client, err := track.NewClient(cfg.Track)
	if err != nil {
		logger.WithError(err).Error("failed to create track client")
		os.Exit(1)
	}
	syncer := track.NewSyncer(store, client)

	if *runOnce {
		stats, err := syncer.SyncAll(context.Background())
		if err != nil {
			logger.WithError(err).Error("sync failed")
			os.Exit(1)
		}
		logger.WithFields(map[string]interface{}{
			"organizations":    stats.Organizations,
			"programs":         stats.Programs,
			"team_assignments": stats.TeamAssignments,
			"errors":           stats.Errors,
		}).Info("sync completed")
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Track.Schedule, func() {
		if _, err := syncer.SyncAll(context.Background()); err != nil {
			logger.WithError(err).Error("scheduled sync failed")
		}
	})
	if err != nil {
		logger.WithError(err).Error("invalid sync schedule")
		os.Exit(1)
	}
	c.Start()
	logger.WithField("schedule", cfg.Track.Schedule).Info("track sync scheduled")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	<-c.Stop().Done()
}
