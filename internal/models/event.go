package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEventKind is returned when a payload names an event kind outside the known set.
var ErrUnknownEventKind = errors.New("unknown event kind")

// EventKind classifies an event. Values are the labels the PTIT backends use on the wire.
type EventKind string

const (
	KindGeneral    EventKind = "Chung"
	KindClass      EventKind = "Lịch học"
	KindExam       EventKind = "Lịch thi"
	KindAssignment EventKind = "Bài tập"
	KindMeeting    EventKind = "Họp lớp"
	KindPersonal   EventKind = "Cá nhân"
	KindOther      EventKind = "Khác"
)

var kindNames = map[EventKind]string{
	KindGeneral:    "General",
	KindClass:      "Class",
	KindExam:       "Exam",
	KindAssignment: "Assignment",
	KindMeeting:    "Meeting",
	KindPersonal:   "Personal",
	KindOther:      "Other",
}

// ParseEventKind validates a wire label against the known kinds.
func ParseEventKind(label string) (EventKind, error) {
	kind := EventKind(label)
	if _, ok := kindNames[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, label)
	}
	return kind, nil
}

// Name returns the English name of the kind, e.g. "Class".
func (k EventKind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Event represents a normalized calendar event.
// This is an internal representation, independent of the backend source that produced it.
type Event struct {
	Title     string    `json:"title"`      // Summary or title of the event
	StartDate *string   `json:"start_date"` // Start date as sent by the source, nil when absent
	EndDate   *string   `json:"end_date"`   // End date as sent by the source, nil when absent
	Type      EventKind `json:"type"`
	Location  string    `json:"location"`
	Source    string    `json:"source"` // Name of the source that produced the event
}

// uidNamespace scopes the name-based UUIDs generated for events.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://gwdu.ptit.edu.vn/ptitcal"))

// UID returns a stable identifier derived from the event's fields, used when
// exporting or syncing the event to other calendars.
func (e Event) UID() string {
	parts := []string{e.Source, deref(e.StartDate), deref(e.EndDate), e.Title, e.Location}
	return uuid.NewSHA1(uidNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}

// StartTime parses StartDate. Dates without a zone are interpreted in loc.
func (e Event) StartTime(loc *time.Location) (time.Time, bool) {
	return parseDate(e.StartDate, loc)
}

// EndTime parses EndDate. Dates without a zone are interpreted in loc.
func (e Event) EndTime(loc *time.Location) (time.Time, bool) {
	return parseDate(e.EndDate, loc)
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

func parseDate(value *string, loc *time.Location) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	s := strings.TrimSpace(*value)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
