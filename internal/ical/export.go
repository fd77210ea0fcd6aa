// Package ical renders events as iCalendar data.
package ical

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"

	"ptitcal/internal/models"
)

const ProductID = "-//ptitcal//EN"

// ErrNoEvents is returned by Encode when no event has a usable start date.
var ErrNoEvents = errors.New("no exportable events")

// Exporter converts events to VEVENTs. Dates without a zone are read in loc.
type Exporter struct {
	loc *time.Location
	now func() time.Time
}

func NewExporter(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{loc: loc, now: time.Now}
}

// Event builds the VEVENT for ev. It returns false when the start date is
// missing or unparseable.
func (x *Exporter) Event(ev models.Event) (*goical.Event, bool) {
	start, ok := ev.StartTime(x.loc)
	if !ok {
		return nil, false
	}

	ve := goical.NewEvent()
	ve.Props.SetText(goical.PropUID, ev.UID())
	ve.Props.SetDateTime(goical.PropDateTimeStamp, x.now().UTC())
	ve.Props.SetText(goical.PropSummary, ev.Title)
	if ev.Location != "" {
		ve.Props.SetText(goical.PropLocation, ev.Location)
	}
	if ev.Type != "" {
		ve.Props.SetText(goical.PropCategories, string(ev.Type))
	}
	ve.Props.SetText(goical.PropDescription, fmt.Sprintf("%s (%s)", ev.Type.Name(), ev.Source))

	allDay := dateOnly(ev.StartDate)
	if allDay {
		ve.Props.SetDate(goical.PropDateTimeStart, start)
	} else {
		ve.Props.SetDateTime(goical.PropDateTimeStart, start.UTC())
	}
	if end, ok := ev.EndTime(x.loc); ok && end.After(start) {
		if allDay && dateOnly(ev.EndDate) {
			ve.Props.SetDate(goical.PropDateTimeEnd, end)
		} else {
			ve.Props.SetDateTime(goical.PropDateTimeEnd, end.UTC())
		}
	}
	return ve, true
}

// Calendar wraps the exportable events in a VCALENDAR and reports how many
// were skipped.
func (x *Exporter) Calendar(events []models.Event) (*goical.Calendar, int) {
	cal := newCalendar()
	skipped := 0
	for _, ev := range events {
		ve, ok := x.Event(ev)
		if !ok {
			skipped++
			continue
		}
		cal.Children = append(cal.Children, ve.Component)
	}
	return cal, skipped
}

// Single returns a calendar holding only ev, the unit stored per CalDAV object.
func (x *Exporter) Single(ev models.Event) (*goical.Calendar, error) {
	ve, ok := x.Event(ev)
	if !ok {
		return nil, fmt.Errorf("event %q has no usable start date", ev.Title)
	}
	cal := newCalendar()
	cal.Children = append(cal.Children, ve.Component)
	return cal, nil
}

// Encode writes the events as an .ics stream.
func (x *Exporter) Encode(w io.Writer, events []models.Event) (written, skipped int, err error) {
	cal, skipped := x.Calendar(events)
	if len(cal.Children) == 0 {
		return 0, skipped, ErrNoEvents
	}
	if err := goical.NewEncoder(w).Encode(cal); err != nil {
		return 0, skipped, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return len(cal.Children), skipped, nil
}

func newCalendar() *goical.Calendar {
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, ProductID)
	cal.Props.SetText(goical.PropCalendarScale, "GREGORIAN")
	return cal
}

func dateOnly(s *string) bool {
	return s != nil && len(strings.TrimSpace(*s)) == len("2006-01-02") && !strings.Contains(*s, ":")
}
