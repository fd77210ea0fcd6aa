package ptit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hanoi(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return loc
}

func TestDayRange(t *testing.T) {
	loc := hanoi(t)
	day := time.Date(2024, 9, 9, 15, 30, 0, 0, loc)

	from, to := DayRange(day, day.AddDate(0, 0, 6), loc)
	assert.Equal(t, "2024-09-08T17:00:00.000Z", from)
	assert.Equal(t, "2024-09-15T16:59:59.999Z", to)

	from, to = DayRange(day, day, nil)
	assert.Equal(t, "2024-09-09T00:00:00.000Z", from)
	assert.Equal(t, "2024-09-09T23:59:59.999Z", to)
}

func TestParseDayRange(t *testing.T) {
	loc := hanoi(t)

	from, to, err := ParseDayRange("2024-01-01", "2024-01-31", loc)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31T17:00:00.000Z", from)
	assert.Equal(t, "2024-01-31T16:59:59.999Z", to)

	tests := []struct{ first, last string }{
		{"2024-02-01", "2024-01-01"},
		{"01/09/2024", "2024-09-15"},
		{"2024-09-01", ""},
	}
	for _, tt := range tests {
		_, _, err := ParseDayRange(tt.first, tt.last, loc)
		assert.ErrorIs(t, err, ErrInvalidRange, "%s..%s", tt.first, tt.last)
	}
}

func TestWeek(t *testing.T) {
	loc := hanoi(t)

	// Sunday evening in UTC is still Sunday in Hanoi until 17:00 UTC.
	from, to := Week(time.Date(2024, 9, 8, 16, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, "2024-09-01T17:00:00.000Z", from)
	assert.Equal(t, "2024-09-08T16:59:59.999Z", to)

	// 20:00 UTC Sunday is Monday morning in Hanoi.
	from, to = Week(time.Date(2024, 9, 8, 20, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, "2024-09-08T17:00:00.000Z", from)
	assert.Equal(t, "2024-09-15T16:59:59.999Z", to)
}

func TestFetchEventsTimestampPath(t *testing.T) {
	from, to := Week(time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC), hanoi(t))
	exams := "/khao-thi/lich-thi/lich-thi/sv/from/" + from + "/to/" + to
	backend := newFakeBackend(t, map[string]route{
		exams: {status: 200, body: `{"success":true,"data":[{"danhSachHocPhan":[{"ten":"Vật lý 1"}]}]}`},
	})
	src, _ := LookupSource("KHAO_THI_LICH_THI")
	f := NewFetcher(backend.srv.URL, &staticTokens{token: "t"}, backend.srv.Client(), quietLogger()).
		WithSources([]Source{src})

	events, err := f.FetchEvents(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"/khao-thi/lich-thi/lich-thi/sv/from/2024-09-08T17:00:00.000Z/to/2024-09-15T16:59:59.999Z"}, backend.requests)
}
