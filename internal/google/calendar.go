// Package google publishes events to a Google Calendar.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"ptitcal/internal/config"
	"ptitcal/internal/models"
)

const (
	credentialsFile = "credentials.json"
)

// CalendarClient imports events into one Google calendar.
type CalendarClient struct {
	service    *calendar.Service
	calendarID string
	loc        *time.Location
	logger     *slog.Logger
}

// NewClient creates a Google Calendar client authorized with the token saved
// by the google-auth command. httpClient is the transport used for API and
// token refresh calls.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.GoogleConfig, fsys afero.Fs, httpClient *http.Client, loc *time.Location) (*CalendarClient, error) {
	oauthCfg, err := OAuthConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := LoadToken(fsys, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load google token from %s: %w. Please run the 'google-auth' command first", cfg.TokenFile, err)
	}

	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	service, err := calendar.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return newCalendarClient(service, cfg.CalendarID, loc, logger), nil
}

func newCalendarClient(service *calendar.Service, calendarID string, loc *time.Location, logger *slog.Logger) *CalendarClient {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarClient{service: service, calendarID: calendarID, loc: loc, logger: logger}
}

// Name identifies the publisher in sync state.
func (c *CalendarClient) Name() string {
	return "google"
}

// Publish imports the event keyed by its iCalUID; importing the same UID
// again updates the existing event.
func (c *CalendarClient) Publish(ctx context.Context, event models.Event) error {
	item, err := toGoogleEvent(event, c.loc)
	if err != nil {
		return err
	}

	c.logger.Debug("Importing event to Google Calendar", "calendarID", c.calendarID, "eventTitle", event.Title, "uid", item.ICalUID)
	if _, err := c.service.Events.Import(c.calendarID, item).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to import event: %w", err)
	}

	c.logger.Info("Successfully published event to Google Calendar", "eventTitle", event.Title)
	return nil
}

// toGoogleEvent converts an internal Event to a Google Calendar event.
// Google requires an end; a missing one becomes the start (or the next day
// for all-day events).
func toGoogleEvent(event models.Event, loc *time.Location) (*calendar.Event, error) {
	start, ok := event.StartTime(loc)
	if !ok {
		return nil, fmt.Errorf("event %q has no usable start date", event.Title)
	}
	end, ok := event.EndTime(loc)
	if !ok || end.Before(start) {
		end = start
	}

	item := &calendar.Event{
		ICalUID:     event.UID(),
		Summary:     event.Title,
		Location:    event.Location,
		Description: fmt.Sprintf("%s (%s)", event.Type.Name(), event.Source),
	}

	if isDate(event.StartDate) {
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		item.Start = &calendar.EventDateTime{Date: start.Format("2006-01-02")}
		item.End = &calendar.EventDateTime{Date: end.Format("2006-01-02")}
		return item, nil
	}

	item.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()}
	item.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()}
	return item, nil
}

func isDate(s *string) bool {
	if s == nil {
		return false
	}
	_, err := time.Parse("2006-01-02", *s)
	return err == nil
}

// OAuthConfig builds the OAuth2 config for the google-auth flow and the API
// client. Explicit client credentials take priority over a local
// credentials.json file.
func OAuthConfig(cfg config.GoogleConfig) (*oauth2.Config, error) {
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	oauthCfg.RedirectURL = cfg.RedirectURL
	return oauthCfg, nil
}

// TokenFromWeb exchanges the code received by the auth flow.
func TokenFromWeb(ctx context.Context, oauthCfg *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return oauthCfg.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path, readable only by the owner.
func SaveToken(fsys afero.Fs, path string, token *oauth2.Token) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create token directory: %w", err)
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// LoadToken retrieves a token from a file.
func LoadToken(fsys afero.Fs, path string) (*oauth2.Token, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
