package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"ptitcal/internal/caldav"
	"ptitcal/internal/google"
	"ptitcal/internal/ical"
	"ptitcal/internal/syncer"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Publish PTIT events to the configured CalDAV and Google calendars.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds. Overrides --once."},
			&cli.StringFlag{Name: "schedule", Usage: "Run sync on this cron schedule, e.g. '*/30 * * * *'."},
			&cli.BoolFlag{Name: "daemon", Usage: "Run sync on the schedule from the config file."},
			&cli.StringFlag{Name: "from", Usage: "Fixed first day (YYYY-MM-DD, inclusive). Requires --to."},
			&cli.StringFlag{Name: "to", Usage: "Fixed last day (YYYY-MM-DD, inclusive). Requires --from."},
			&cli.IntFlag{Name: "days", Usage: "Window size in whole days, today included."},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			logger := e.logger

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}
			if c.IsSet("from") != c.IsSet("to") {
				return errors.New("--from and --to must be given together")
			}

			loc, err := e.cfg.Location()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			f, err := e.fetcher(ctx)
			if err != nil {
				return err
			}

			var publishers []syncer.Publisher
			if e.cfg.Sync.CalDAV.Enabled() {
				cdClient, err := caldav.NewClient(ctx, logger, e.cfg.Sync.CalDAV, e.client.Transport, ical.NewExporter(loc))
				if err != nil {
					return fmt.Errorf("failed to create caldav client: %w", err)
				}
				publishers = append(publishers, cdClient)
			}
			if e.cfg.Sync.Google.Enabled() {
				gClient, err := google.NewClient(ctx, logger, e.cfg.Sync.Google, afero.NewOsFs(), e.client, loc)
				if err != nil {
					return fmt.Errorf("failed to create google client: %w", err)
				}
				publishers = append(publishers, gClient)
			}
			if len(publishers) == 0 && !c.Bool("dry-run") {
				return errors.New("no sync target configured; set sync.caldav or sync.google in the config file")
			}
			logger.Info("Initialized publishers.", "count", len(publishers))

			days := e.cfg.Sync.Days
			if c.IsSet("days") {
				days = c.Int("days")
			}
			s, err := syncer.NewSyncer(logger, f, publishers, syncer.Options{
				StateFile: e.cfg.Sync.StateFile,
				Fs:        afero.NewOsFs(),
				From:      c.String("from"),
				To:        c.String("to"),
				Days:      days,
				DryRun:    c.Bool("dry-run"),
				Location:  loc,
			})
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			switch {
			// --watch flag takes precedence
			case c.IsSet("watch"):
				return s.RunEvery(ctx, time.Duration(c.Int("watch"))*time.Second)
			case c.IsSet("schedule"):
				return s.RunScheduled(ctx, c.String("schedule"))
			case c.Bool("daemon") && !c.Bool("once"):
				return s.RunScheduled(ctx, e.cfg.Sync.Schedule)
			default:
				logger.Info("Running a single sync cycle.")
				if _, err := s.Sync(ctx); err != nil {
					return fmt.Errorf("single sync cycle failed: %w", err)
				}
				return nil
			}
		},
	}
}
