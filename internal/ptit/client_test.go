package ptit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"ptitcal/internal/models"
	"ptitcal/internal/session"
)

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) Token(context.Context) (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

// fakeBackend serves one canned response per source path.
type fakeBackend struct {
	mu       sync.Mutex
	srv      *httptest.Server
	routes   map[string]route
	requests []string
	auth     []string
}

type route struct {
	status int
	body   string
}

func newFakeBackend(t *testing.T, routes map[string]route) *fakeBackend {
	t.Helper()
	b := &fakeBackend{routes: routes}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.URL.Path)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()

		rt, ok := b.routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rt.status)
		_, _ = w.Write([]byte(rt.body))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	timetablePath  = "/qldt/thoi-khoa-bieu/sv/from/2024-09-09/to/2024-09-15"
	assignmentPath = "/qldt/assignment/lich/sinh-vien/from/2024-09-09/to/2024-09-15"
	examPath       = "/khao-thi/lich-thi/lich-thi/sv/from/2024-09-09/to/2024-09-15"
	campusPath     = "/slink/su-kien/user/from/2024-09-09/to/2024-09-15"
)

func allRoutes() map[string]route {
	return map[string]route{
		timetablePath: {status: 200, body: `{"success":true,"data":[
			{"lopHocPhan":{"hocPhan":{"ten":"Giải tích 1"}},"phongHoc":"A2-301","thoiGianBatDau":"2024-09-09T07:00:00"},
			{"lopHocPhan":{"hocPhan":{"ten":"Triết học"}},"phongHoc":"A1-101"}]}`},
		assignmentPath: {status: 200, body: `{"success":false,"data":[{"noiDung":"ignored"}]}`},
		examPath:       {status: 200, body: `{"success":true,"data":[{"danhSachHocPhan":[{"ten":"Vật lý 1"}],"phong":{"ma":"402-A3"}}]}`},
		campusPath: {status: 200, body: `{"success":true,"data":[
			{"tenSuKien":"Hội thảo AI","loaiSuKien":"Workshop"},
			{"tenSuKien":"Sinh hoạt lớp","loaiSuKien":"Họp lớp","diaDiem":"Hội trường"}]}`},
	}
}

func TestFetchEventsMergesInRegistryOrder(t *testing.T) {
	backend := newFakeBackend(t, allRoutes())
	tokens := &staticTokens{token: "access-1"}
	f := NewFetcher(backend.srv.URL+"/", tokens, backend.srv.Client(), quietLogger())

	events, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")
	require.NoError(t, err)

	titles := make([]string, 0, len(events))
	for _, ev := range events {
		titles = append(titles, ev.Title)
	}
	// success=false source contributes nothing; the unknown campus kind is skipped.
	assert.Equal(t, []string{"Giải tích 1", "Triết học", "Vật lý 1", "Sinh hoạt lớp"}, titles)
	assert.Equal(t, "QLDT_THOI_KHOA_BIEU", events[0].Source)
	assert.Equal(t, "KHAO_THI_LICH_THI", events[2].Source)
	assert.Equal(t, models.KindMeeting, events[3].Type)

	assert.Equal(t, []string{timetablePath, assignmentPath, examPath, campusPath}, backend.requests)
	for _, h := range backend.auth {
		assert.Equal(t, "Bearer access-1", h)
	}
	assert.Equal(t, 4, tokens.calls)
}

func TestFetchEventsTwoSuccessfulSources(t *testing.T) {
	routes := allRoutes()
	routes[examPath] = route{status: 200, body: `{"success":false,"data":null}`}
	backend := newFakeBackend(t, routes)
	f := NewFetcher(backend.srv.URL, &staticTokens{token: "t"}, backend.srv.Client(), quietLogger())

	events, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")
	require.NoError(t, err)

	type entry struct{ source, title string }
	got := make([]entry, 0, len(events))
	for _, ev := range events {
		got = append(got, entry{ev.Source, ev.Title})
	}
	assert.Equal(t, []entry{
		{"QLDT_THOI_KHOA_BIEU", "Giải tích 1"},
		{"QLDT_THOI_KHOA_BIEU", "Triết học"},
		{"SLINK_SU_KIEN", "Sinh hoạt lớp"},
	}, got)
	assert.Equal(t, []string{timetablePath, assignmentPath, examPath, campusPath}, backend.requests)
}

func TestFetchEventsAbortsOnHTTPError(t *testing.T) {
	routes := allRoutes()
	routes[examPath] = route{status: http.StatusInternalServerError, body: `{"message":"boom"}`}
	backend := newFakeBackend(t, routes)
	f := NewFetcher(backend.srv.URL, &staticTokens{token: "t"}, backend.srv.Client(), quietLogger())

	events, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")

	assert.Nil(t, events)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)
	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "KHAO_THI_LICH_THI", ferr.Source)
	assert.Equal(t, http.StatusInternalServerError, ferr.StatusCode)
	assert.Contains(t, err.Error(), "boom")
	// the fourth source is never requested
	assert.Equal(t, []string{timetablePath, assignmentPath, examPath}, backend.requests)
}

func TestFetchEventsDecodeError(t *testing.T) {
	routes := allRoutes()
	routes[timetablePath] = route{status: 200, body: `<html>maintenance</html>`}
	backend := newFakeBackend(t, routes)
	f := NewFetcher(backend.srv.URL, &staticTokens{token: "t"}, backend.srv.Client(), quietLogger())

	_, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestFetchEventsNetworkError(t *testing.T) {
	backend := newFakeBackend(t, allRoutes())
	url := backend.srv.URL
	backend.srv.Close()
	f := NewFetcher(url, &staticTokens{token: "t"}, http.DefaultClient, quietLogger())

	_, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetchEventsSessionExpired(t *testing.T) {
	backend := newFakeBackend(t, allRoutes())
	expired := &session.AuthError{Phase: "refresh", Kind: session.ErrSessionExpired, Err: errors.New("invalid_grant")}
	f := NewFetcher(backend.srv.URL, &staticTokens{err: expired}, backend.srv.Client(), quietLogger())

	_, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.Empty(t, backend.requests)
}

func TestFetchEventsRequiresRange(t *testing.T) {
	f := NewFetcher("http://unused", &staticTokens{token: "t"}, nil, quietLogger())
	_, err := f.FetchEvents(context.Background(), "", "2024-09-15")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestFetchEventsWithSources(t *testing.T) {
	backend := newFakeBackend(t, allRoutes())
	exams, _ := LookupSource("KHAO_THI_LICH_THI")
	f := NewFetcher(backend.srv.URL, &staticTokens{token: "t"}, backend.srv.Client(), quietLogger()).
		WithSources([]Source{exams})

	events, err := f.FetchEvents(context.Background(), "2024-09-09", "2024-09-15")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Vật lý 1", events[0].Title)
	assert.Equal(t, []string{examPath}, backend.requests)
}
