package caldav

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptitical "ptitcal/internal/ical"
	"ptitcal/internal/models"
)

type fakeCalendarAPI struct {
	calendars []caldav.Calendar
	putErr    error
	puts      map[string]*ical.Calendar
}

func (f *fakeCalendarAPI) FindCurrentUserPrincipal(context.Context) (string, error) {
	return "/principals/student/", nil
}

func (f *fakeCalendarAPI) FindCalendarHomeSet(_ context.Context, principal string) (string, error) {
	if principal != "/principals/student/" {
		return "", errors.New("unexpected principal")
	}
	return "/calendars/student/", nil
}

func (f *fakeCalendarAPI) FindCalendars(context.Context, string) ([]caldav.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeCalendarAPI) PutCalendarObject(_ context.Context, p string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	if f.puts == nil {
		f.puts = map[string]*ical.Calendar{}
	}
	f.puts[p] = cal
	return &caldav.CalendarObject{Path: p}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCalendars() []caldav.Calendar {
	return []caldav.Calendar{
		{Path: "/calendars/student/personal/", Name: "Personal"},
		{Path: "/calendars/student/ptit/", Name: "PTIT"},
	}
}

func TestFindCalendar(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "PTIT", path: "/calendars/student/ptit/"},
		{name: "", path: "/calendars/student/personal/"},
		{name: "/calendars/student/ptit", path: "/calendars/student/ptit/"},
		{name: "Work", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeCalendarAPI{calendars: testCalendars()}
			c, err := newClient(context.Background(), quietLogger(), api, tt.name, ptitical.NewExporter(time.UTC))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, c.calendarPath)
		})
	}
}

func TestPublish(t *testing.T) {
	api := &fakeCalendarAPI{calendars: testCalendars()}
	c, err := newClient(context.Background(), quietLogger(), api, "PTIT", ptitical.NewExporter(time.UTC))
	require.NoError(t, err)

	start := "2024-09-09T07:00:00"
	ev := models.Event{Title: "Giải tích 1", StartDate: &start, Type: models.KindClass, Source: "QLDT_THOI_KHOA_BIEU"}
	require.NoError(t, c.Publish(context.Background(), ev))

	want := "/calendars/student/ptit/" + ev.UID() + ".ics"
	require.Contains(t, api.puts, want)
	summary, err := api.puts[want].Children[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Giải tích 1", summary)
	assert.Equal(t, "caldav", c.Name())
}

func TestPublishErrors(t *testing.T) {
	api := &fakeCalendarAPI{calendars: testCalendars(), putErr: errors.New("507 insufficient storage")}
	c, err := newClient(context.Background(), quietLogger(), api, "PTIT", ptitical.NewExporter(time.UTC))
	require.NoError(t, err)

	start := "2024-09-09"
	err = c.Publish(context.Background(), models.Event{Title: "x", StartDate: &start})
	assert.ErrorContains(t, err, "507 insufficient storage")

	err = c.Publish(context.Background(), models.Event{Title: "undated"})
	assert.Error(t, err)
}

func TestCustomTransport(t *testing.T) {
	var user, pass, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		agent = r.UserAgent()
	}))
	defer srv.Close()

	client := &http.Client{Transport: &customTransport{Username: "sv", Password: "secret", Transport: http.DefaultTransport}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "sv", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "ptitcal/1.0", agent)
}
