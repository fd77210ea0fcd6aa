// Package ptit fetches events from the PTIT student backends and normalizes
// them into models.Event values.
package ptit

import (
	"encoding/json"

	"ptitcal/internal/models"
)

// Source describes one backend endpoint and how to map its records.
// Map is pure: it sees one raw record and returns an event without Source set.
type Source struct {
	Name string
	Path string
	Map  func(record json.RawMessage) (models.Event, error)
}

// Sources is the fixed registry, in the order results are concatenated.
var Sources = []Source{
	{Name: "QLDT_THOI_KHOA_BIEU", Path: "/qldt/thoi-khoa-bieu/sv", Map: mapTimetable},
	{Name: "QLDT_ASSIGNMENT", Path: "/qldt/assignment/lich/sinh-vien", Map: mapAssignment},
	{Name: "KHAO_THI_LICH_THI", Path: "/khao-thi/lich-thi/lich-thi/sv", Map: mapExam},
	{Name: "SLINK_SU_KIEN", Path: "/slink/su-kien/user", Map: mapCampusEvent},
}

// LookupSource returns the registry entry with the given name.
func LookupSource(name string) (Source, bool) {
	for _, src := range Sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}
