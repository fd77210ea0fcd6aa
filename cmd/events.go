package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"ptitcal/internal/ical"
	"ptitcal/internal/models"
	"ptitcal/internal/ptit"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Fetch events between two days, by default the current week.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "First day (YYYY-MM-DD, inclusive). Requires --to."},
			&cli.StringFlag{Name: "to", Usage: "Last day (YYYY-MM-DD, inclusive). Requires --from."},
			&cli.StringFlag{Name: "format", Value: "table", Usage: "table, json or ics."},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to this file instead of stdout."},
			&cli.StringSliceFlag{Name: "source", Usage: "Only query these sources (repeatable)."},
		},
		Action: func(c *cli.Context) error {
			format := c.String("format")
			switch format {
			case "table", "json", "ics":
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			if c.IsSet("from") != c.IsSet("to") {
				return errors.New("--from and --to must be given together")
			}

			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			loc, err := e.cfg.Location()
			if err != nil {
				return err
			}
			from, to := ptit.Week(time.Now(), loc)
			if c.IsSet("from") {
				if from, to, err = ptit.ParseDayRange(c.String("from"), c.String("to"), loc); err != nil {
					return err
				}
			}

			f, err := e.fetcher(c.Context)
			if err != nil {
				return err
			}
			if names := c.StringSlice("source"); len(names) > 0 {
				sources := make([]ptit.Source, 0, len(names))
				for _, name := range names {
					src, ok := ptit.LookupSource(name)
					if !ok {
						return fmt.Errorf("unknown source %q", name)
					}
					sources = append(sources, src)
				}
				f = f.WithSources(sources)
			}

			events, err := f.FetchEvents(c.Context, from, to)
			if err != nil {
				return err
			}

			out := io.Writer(os.Stdout)
			if path := c.String("output"); path != "" {
				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				out = file
			}

			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			case "ics":
				written, skipped, err := ical.NewExporter(loc).Encode(out, events)
				if err != nil {
					return err
				}
				e.logger.Info("Exported events.", "written", written, "skipped", skipped)
				return nil
			default:
				return writeTable(out, events)
			}
		},
	}
}

func writeTable(w io.Writer, events []models.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tTYPE\tTITLE\tLOCATION")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", orDash(ev.StartDate), orDash(ev.EndDate), ev.Type.Name(), ev.Title, ev.Location)
	}
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
