// Package caldav publishes events to a CalDAV calendar.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"ptitcal/internal/config"
	ptitical "ptitcal/internal/ical"
	"ptitcal/internal/models"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	req.Header.Set("User-Agent", "ptitcal/1.0")
	return t.Transport.RoundTrip(req)
}

// calendarAPI is the subset of *caldav.Client used here.
type calendarAPI interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
}

// Client publishes events into one calendar on a CalDAV server.
type Client struct {
	api          calendarAPI
	exporter     *ptitical.Exporter
	logger       *slog.Logger
	calendarPath string
}

// NewClient connects to cfg.Endpoint and resolves the calendar named cfg.Calendar.
// base is the transport used underneath authentication; nil means http.DefaultTransport.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.CalDAVConfig, base http.RoundTripper, exporter *ptitical.Exporter) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("caldav endpoint is not configured")
	}
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: &customTransport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: base,
	}}

	caldavClient, err := caldav.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return newClient(ctx, logger, caldavClient, cfg.Calendar, exporter)
}

func newClient(ctx context.Context, logger *slog.Logger, api calendarAPI, calendarName string, exporter *ptitical.Exporter) (*Client, error) {
	c := &Client{api: api, exporter: exporter, logger: logger}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)
	return c, nil
}

// Name identifies the publisher in sync state.
func (c *Client) Name() string {
	return "caldav"
}

// Publish creates or replaces the calendar object for the event. The object
// name is the event UID, so publishing twice overwrites.
func (c *Client) Publish(ctx context.Context, event models.Event) error {
	uid := event.UID()
	c.logger.Debug("Publishing event to CalDAV", "eventTitle", event.Title, "uid", uid)

	cal, err := c.exporter.Single(event)
	if err != nil {
		return err
	}

	if _, err := c.api.PutCalendarObject(ctx, c.objectPath(uid), cal); err != nil {
		return fmt.Errorf("failed to put event on CalDAV server: %w", err)
	}

	c.logger.Info("Successfully published event to CalDAV", "eventTitle", event.Title)
	return nil
}

func (c *Client) objectPath(uid string) string {
	return path.Join(c.calendarPath, uid+".ics")
}

// findCalendar discovers the user's calendars and returns the path of the one
// with the matching name, or the first one when name is empty.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.api.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.api.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.api.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if name == "" || cal.Name == name || strings.TrimSuffix(cal.Path, "/") == strings.TrimSuffix(name, "/") {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
