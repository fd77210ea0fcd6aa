package ptit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ptitcal/internal/models"
)

// MappingError reports a record that could not be turned into an event.
// The record is skipped; the rest of the response is kept.
type MappingError struct {
	Source string
	Index  int
	Err    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("source %s: record %d: %v", e.Source, e.Index, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// normalize maps one record and fills in what the mappers leave to the caller.
func normalize(src Source, index int, record json.RawMessage) (models.Event, error) {
	ev, err := src.Map(record)
	if err != nil {
		return models.Event{}, &MappingError{Source: src.Name, Index: index, Err: err}
	}
	ev.Source = src.Name
	if ev.Title == "" {
		ev.Title = src.Name
	}
	return ev, nil
}

// text decodes a JSON scalar as a string. null and missing become "".
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	case len(b) > 0 && (b[0] == '{' || b[0] == '['):
		return fmt.Errorf("expected a string, got %s", kindOf(b[0]))
	default:
		// numbers and booleans keep their literal form
		*t = text(b)
	}
	return nil
}

// optional is a nullable string; null and missing stay nil.
type optional struct {
	value *string
}

func (o *optional) UnmarshalJSON(b []byte) error {
	var t text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.value = nil
		return nil
	}
	s := string(t)
	o.value = &s
	return nil
}

func kindOf(c byte) string {
	if c == '{' {
		return "an object"
	}
	return "an array"
}

// schedule carries the date fields shared by every source.
type schedule struct {
	Start optional `json:"thoiGianBatDau"`
	End   optional `json:"thoiGianKetThuc"`
}

func (s schedule) event(title string, kind models.EventKind, location string) models.Event {
	return models.Event{
		Title:     title,
		StartDate: s.Start.value,
		EndDate:   s.End.value,
		Type:      kind,
		Location:  location,
	}
}

func decodeRecord(record json.RawMessage, v any) error {
	if bytes.Equal(bytes.TrimSpace(record), []byte("null")) {
		return errors.New("record is null")
	}
	if err := json.Unmarshal(record, v); err != nil {
		return fmt.Errorf("malformed record: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...text) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

type timetableRecord struct {
	schedule
	LopHocPhan *struct {
		HocPhan *struct {
			Ten text `json:"ten"`
		} `json:"hocPhan"`
		MaHocPhan text `json:"maHocPhan"`
	} `json:"lopHocPhan"`
	TenLopHocPhan text `json:"tenLopHocPhan"`
	PhongHoc      text `json:"phongHoc"`
}

func mapTimetable(record json.RawMessage) (models.Event, error) {
	var r timetableRecord
	if err := decodeRecord(record, &r); err != nil {
		return models.Event{}, err
	}
	var course, code text
	if r.LopHocPhan != nil {
		code = r.LopHocPhan.MaHocPhan
		if r.LopHocPhan.HocPhan != nil {
			course = r.LopHocPhan.HocPhan.Ten
		}
	}
	title := firstNonEmpty(course, code, r.TenLopHocPhan)
	return r.event(title, models.KindClass, string(r.PhongHoc)), nil
}

type assignmentRecord struct {
	schedule
	NoiDung       text `json:"noiDung"`
	TenLopHocPhan text `json:"tenLopHocPhan"`
}

func mapAssignment(record json.RawMessage) (models.Event, error) {
	var r assignmentRecord
	if err := decodeRecord(record, &r); err != nil {
		return models.Event{}, err
	}
	return r.event(string(r.NoiDung), models.KindAssignment, string(r.TenLopHocPhan)), nil
}

type examRecord struct {
	schedule
	DanhSachHocPhan []*struct {
		Ten text `json:"ten"`
	} `json:"danhSachHocPhan"`
	Phong *struct {
		Ma text `json:"ma"`
	} `json:"phong"`
}

func mapExam(record json.RawMessage) (models.Event, error) {
	var r examRecord
	if err := decodeRecord(record, &r); err != nil {
		return models.Event{}, err
	}
	names := make([]string, 0, len(r.DanhSachHocPhan))
	for _, hp := range r.DanhSachHocPhan {
		if hp == nil {
			names = append(names, "")
			continue
		}
		names = append(names, string(hp.Ten))
	}
	var room string
	if r.Phong != nil {
		room = string(r.Phong.Ma)
	}
	return r.event(strings.Join(names, ", "), models.KindExam, room), nil
}

type campusEventRecord struct {
	schedule
	TenSuKien  text `json:"tenSuKien"`
	LoaiSuKien text `json:"loaiSuKien"`
	DiaDiem    text `json:"diaDiem"`
}

func mapCampusEvent(record json.RawMessage) (models.Event, error) {
	var r campusEventRecord
	if err := decodeRecord(record, &r); err != nil {
		return models.Event{}, err
	}
	kind, err := models.ParseEventKind(string(r.LoaiSuKien))
	if err != nil {
		return models.Event{}, err
	}
	return r.event(string(r.TenSuKien), kind, string(r.DiaDiem)), nil
}
