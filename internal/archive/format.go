// Package archive exports appointments as JSON array files, purges them in
// chunks after export, and reads exports back for review.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wolfman30/radiology-ops/internal/appointments"
)

// Record is one archived object. "_id" holds the original record key.
type Record map[string]any

// ID returns the archived record key.
func (r Record) ID() string {
	id, _ := r["_id"].(string)
	return id
}

// String returns field as a string, or "" when absent or not a string.
func (r Record) String(field string) string {
	v, _ := r[field].(string)
	return v
}

// ToRecord flattens a into archive form. Timestamps come out as RFC 3339
// strings in UTC.
func ToRecord(a appointments.Appointment) (Record, error) {
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.CompletedAt != nil {
		t := a.CompletedAt.UTC()
		a.CompletedAt = &t
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal %s: %w", a.ID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("archive: flatten %s: %w", a.ID, err)
	}
	delete(rec, "id")
	rec["_id"] = a.ID
	return rec, nil
}

// Encode renders appts as an indented JSON array.
func Encode(appts []appointments.Appointment) ([]byte, error) {
	records := make([]Record, 0, len(appts))
	for _, a := range appts {
		rec, err := ToRecord(a)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive: encode: %w", err)
	}
	return data, nil
}

// Decode reads an archive file. Anything other than a JSON array of objects
// is rejected.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("archive: decode: %w", err)
	}
	return records, nil
}

// Summary describes an archive for the viewer.
type Summary struct {
	Count      int            `json:"count"`
	ByStatus   map[string]int `json:"byStatus"`
	ByExamType map[string]int `json:"byExamType"`
	FirstDate  string         `json:"firstDate,omitempty"`
	LastDate   string         `json:"lastDate,omitempty"`
}

// Summarize counts records by status and exam type and finds the date span.
func Summarize(records []Record) Summary {
	s := Summary{Count: len(records), ByStatus: map[string]int{}, ByExamType: map[string]int{}}
	for _, r := range records {
		s.ByStatus[r.String("status")]++
		s.ByExamType[r.String("examType")]++
		date := r.String("date")
		if date == "" {
			continue
		}
		if s.FirstDate == "" || date < s.FirstDate {
			s.FirstDate = date
		}
		if date > s.LastDate {
			s.LastDate = date
		}
	}
	return s
}

// FilterRecords returns records whose field equals value, preserving order.
func FilterRecords(records []Record, field, value string) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if fmt.Sprint(r[field]) == value {
			out = append(out, r)
		}
	}
	return out
}

// SortByDate orders records by date then time, oldest first.
func SortByDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if di, dj := records[i].String("date"), records[j].String("date"); di != dj {
			return di < dj
		}
		return records[i].String("time") < records[j].String("time")
	})
}

// ObjectKey is where an export created at now lands.
func ObjectKey(label string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("archives/appointments/%04d/%02d/%02d/%s_%s.json",
		now.Year(), now.Month(), now.Day(), label, now.Format("20060102T150405Z"))
}
