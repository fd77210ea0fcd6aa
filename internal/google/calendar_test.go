package google

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"ptitcal/internal/config"
	"ptitcal/internal/models"
)

func strptr(s string) *string { return &s }

func hanoi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return loc
}

func TestToGoogleEvent(t *testing.T) {
	loc := hanoi(t)

	timed := models.Event{
		Title:     "Giải tích 1",
		StartDate: strptr("2024-09-09T07:00:00"),
		EndDate:   strptr("2024-09-09T09:00:00"),
		Type:      models.KindClass,
		Location:  "A2-301",
		Source:    "QLDT_THOI_KHOA_BIEU",
	}
	item, err := toGoogleEvent(timed, loc)
	require.NoError(t, err)
	assert.Equal(t, timed.UID(), item.ICalUID)
	assert.Equal(t, "Giải tích 1", item.Summary)
	assert.Equal(t, "A2-301", item.Location)
	assert.Equal(t, "2024-09-09T07:00:00+07:00", item.Start.DateTime)
	assert.Equal(t, "2024-09-09T09:00:00+07:00", item.End.DateTime)
	assert.Equal(t, "Asia/Ho_Chi_Minh", item.Start.TimeZone)
	assert.Equal(t, "Class (QLDT_THOI_KHOA_BIEU)", item.Description)

	allDay := models.Event{Title: "Nộp bài", StartDate: strptr("2024-09-10"), Type: models.KindAssignment}
	item, err = toGoogleEvent(allDay, loc)
	require.NoError(t, err)
	assert.Equal(t, "2024-09-10", item.Start.Date)
	assert.Equal(t, "2024-09-11", item.End.Date)

	noEnd := models.Event{Title: "Thi", StartDate: strptr("2024-12-20T13:30:00")}
	item, err = toGoogleEvent(noEnd, loc)
	require.NoError(t, err)
	assert.Equal(t, item.Start.DateTime, item.End.DateTime)

	_, err = toGoogleEvent(models.Event{Title: "undated"}, loc)
	assert.Error(t, err)
}

func TestPublishImportsByUID(t *testing.T) {
	var gotPath string
	var got calendar.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","iCalUID":"` + got.ICalUID + `"}`))
	}))
	defer srv.Close()

	service, err := calendar.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	c := newCalendarClient(service, "primary", hanoi(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev := models.Event{Title: "Họp lớp", StartDate: strptr("2024-09-11T14:00:00"), Type: models.KindMeeting, Source: "SLINK_SU_KIEN"}
	require.NoError(t, c.Publish(context.Background(), ev))

	assert.Equal(t, "POST /calendars/primary/events/import", gotPath)
	assert.Equal(t, ev.UID(), got.ICalUID)
	assert.Equal(t, "Họp lớp", got.Summary)
	assert.Equal(t, "google", c.Name())
}

func TestTokenFileRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, SaveToken(fsys, "/cfg/ptitcal/google-token.json", tok))
	got, err := LoadToken(fsys, "/cfg/ptitcal/google-token.json")
	require.NoError(t, err)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))

	info, err := fsys.Stat("/cfg/ptitcal/google-token.json")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())

	_, err = LoadToken(fsys, "/missing.json")
	assert.Error(t, err)
}

func TestOAuthConfigFromCredentials(t *testing.T) {
	cfg, err := OAuthConfig(config.GoogleConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost:8766/callback"})
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, "http://localhost:8766/callback", cfg.RedirectURL)
	assert.Equal(t, []string{calendar.CalendarEventsScope}, cfg.Scopes)
}
