package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"

	"ptitcal/internal/models"
	"ptitcal/internal/ptit"
)

// EventSource produces the events of one sync window.
type EventSource interface {
	FetchEvents(ctx context.Context, from, to string) ([]models.Event, error)
}

// Publisher writes events to one target calendar. Publishing the same event
// twice must not duplicate it.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// SyncState keeps track of which events have been synced.
// The key is the event UID, the value the publishers that accepted it.
type SyncState map[string][]string

// Options configures a Syncer.
type Options struct {
	StateFile string
	Fs        afero.Fs
	// From and To are inclusive days in Location that fix the window;
	// otherwise it is Days days long starting today.
	From, To string
	Days     int
	DryRun   bool
	Location *time.Location
	Now      func() time.Time
}

// Result summarizes a sync cycle.
type Result struct {
	Fetched   int
	Published int
	Skipped   int
	Failed    int
}

// Syncer orchestrates the synchronization from the PTIT backends to the publishers.
type Syncer struct {
	logger     *slog.Logger
	source     EventSource
	publishers []Publisher
	opts       Options
	state      SyncState
	// fixed window bounds, set when From and To are given
	from, to string
}

// NewSyncer creates a new Syncer.
func NewSyncer(logger *slog.Logger, source EventSource, publishers []Publisher, opts Options) (*Syncer, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Days <= 0 {
		opts.Days = 7
	}

	s := &Syncer{
		logger:     logger,
		source:     source,
		publishers: publishers,
		opts:       opts,
	}

	if opts.From != "" || opts.To != "" {
		from, to, err := ptit.ParseDayRange(opts.From, opts.To, opts.Location)
		if err != nil {
			return nil, err
		}
		s.from, s.to = from, to
	}

	state, err := s.loadState()
	if err != nil {
		// If the file doesn't exist, we can start with an empty state.
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("No sync state file found, starting fresh.", "file", opts.StateFile)
			state = make(SyncState)
		} else {
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}
	s.state = state
	return s, nil
}

// Window returns the range fetched by the next cycle, as UTC timestamps.
func (s *Syncer) Window() (from, to string) {
	if s.from != "" {
		return s.from, s.to
	}
	today := s.opts.Now().In(s.opts.Location)
	return ptit.DayRange(today, today.AddDate(0, 0, s.opts.Days-1), s.opts.Location)
}

// Sync performs a full synchronization cycle. A fetch failure aborts the
// cycle; a publish failure is logged and retried on the next cycle.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	from, to := s.Window()
	s.logger.Info("Starting sync cycle.", "from", from, "to", to)

	events, err := s.source.FetchEvents(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch events: %w", err)
	}

	res := Result{Fetched: len(events)}
	s.logger.Info("Fetched all PTIT events.", "count", len(events))

	for _, event := range events {
		uid := event.UID()
		for _, p := range s.publishers {
			if slices.Contains(s.state[uid], p.Name()) {
				s.logger.Debug("Event already synced, skipping.", "title", event.Title, "uid", uid, "publisher", p.Name())
				res.Skipped++
				continue
			}

			if s.opts.DryRun {
				s.logger.Info("[DRY RUN] Would publish new event", "title", event.Title, "start", deref(event.StartDate), "publisher", p.Name())
				continue
			}

			if err := p.Publish(ctx, event); err != nil {
				// Continue with the next event even if one fails.
				s.logger.Error("Failed to publish event", "title", event.Title, "publisher", p.Name(), "error", err)
				res.Failed++
				continue
			}
			s.state[uid] = append(s.state[uid], p.Name())
			res.Published++
		}
	}

	if !s.opts.DryRun {
		if err := s.saveState(); err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.", "published", res.Published, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// loadState loads the sync state from the JSON file.
func (s *Syncer) loadState() (SyncState, error) {
	data, err := afero.ReadFile(s.opts.Fs, s.opts.StateFile)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	if err := s.opts.Fs.MkdirAll(filepath.Dir(s.opts.StateFile), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return afero.WriteFile(s.opts.Fs, s.opts.StateFile, data, 0o644)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
