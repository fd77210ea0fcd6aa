package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		label    string
		want     EventKind
		wantName string
		wantErr  bool
	}{
		{label: "Chung", want: KindGeneral, wantName: "General"},
		{label: "Lịch học", want: KindClass, wantName: "Class"},
		{label: "Lịch thi", want: KindExam, wantName: "Exam"},
		{label: "Bài tập", want: KindAssignment, wantName: "Assignment"},
		{label: "Họp lớp", want: KindMeeting, wantName: "Meeting"},
		{label: "Cá nhân", want: KindPersonal, wantName: "Personal"},
		{label: "Khác", want: KindOther, wantName: "Other"},
		{label: "Hội thảo", wantErr: true},
		{label: "", wantErr: true},
		{label: "General", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseEventKind(tt.label)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownEventKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantName, got.Name())
		})
	}
}

func TestEventUID(t *testing.T) {
	a := Event{Title: "Giải tích 1", StartDate: strPtr("2024-09-09T07:00:00"), Source: "QLDT_THOI_KHOA_BIEU"}
	b := a

	assert.Equal(t, a.UID(), b.UID())

	b.Location = "A2-301"
	assert.NotEqual(t, a.UID(), b.UID())

	c := Event{Title: "Giải tích 1", Source: "QLDT_THOI_KHOA_BIEU"}
	assert.NotEqual(t, a.UID(), c.UID())
}

func TestEventTimes(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)

	tests := []struct {
		name  string
		value *string
		want  time.Time
		ok    bool
	}{
		{name: "nil", value: nil},
		{name: "empty", value: strPtr("  ")},
		{name: "garbage", value: strPtr("tomorrow")},
		{name: "rfc3339", value: strPtr("2024-09-09T00:00:00Z"), want: time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "millis zulu", value: strPtr("2024-09-09T00:00:00.000Z"), want: time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "local datetime", value: strPtr("2024-09-09T07:30:00"), want: time.Date(2024, 9, 9, 7, 30, 0, 0, loc), ok: true},
		{name: "local date", value: strPtr("2024-09-09"), want: time.Date(2024, 9, 9, 0, 0, 0, 0, loc), ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{StartDate: tt.value, EndDate: tt.value}

			start, ok := e.StartTime(loc)
			assert.Equal(t, tt.ok, ok)
			end, _ := e.EndTime(loc)
			if tt.ok {
				assert.True(t, tt.want.Equal(start), "start %s", start)
				assert.True(t, tt.want.Equal(end), "end %s", end)
			}
		})
	}
}
