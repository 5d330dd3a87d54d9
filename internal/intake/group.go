package intake

import (
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
	"github.com/wolfman30/radiology-ops/internal/shifts"
)

const (
	defaultTime   = "00:00"
	unnamedExam   = "Unspecified exam"
	isoDateLayout = "2006-01-02"
)

var (
	isoPrefix = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	dayFirst  = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})`)
	idUnsafe  = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// AppointmentID is the deterministic key for one date/file/modality triple.
func AppointmentID(date, fileNumber string, tag modality.Tag) string {
	return idUnsafe.ReplaceAllString(date+"_"+fileNumber+"_"+tag.ID(), "")
}

// NormalizeDate reduces a feed date to YYYY-MM-DD, dropping any time part.
// Slash dates are read day first. Returns "" when nothing matches.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := isoPrefix.FindStringSubmatch(raw); m != nil {
		return canonicalDate(m[1], m[2], m[3])
	}
	if m := dayFirst.FindStringSubmatch(raw); m != nil {
		return canonicalDate(m[3], m[2], m[1])
	}
	return ""
}

func canonicalDate(y, m, d string) string {
	t, err := time.Parse(isoDateLayout, y+"-"+pad2(m)+"-"+pad2(d))
	if err != nil {
		return ""
	}
	return t.Format(isoDateLayout)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// Group converts raw records into one pending appointment per
// date/file/modality. Exams of one modality on one visit collapse into a
// single appointment whose ExamList keeps feed order. Records without a file
// number are skipped because they cannot be keyed.
func Group(records []Record, now time.Time) []appointments.Appointment {
	return GroupWith(DefaultAliases, records, now)
}

// GroupWith is Group with a caller-supplied alias table.
func GroupWith(aliases AliasTable, records []Record, now time.Time) []appointments.Appointment {
	now = now.UTC()
	today := now.Format(isoDateLayout)

	var order []string
	byID := make(map[string]*appointments.Appointment)

	for _, rec := range records {
		rs := aliases.resolve(rec)
		fileNumber := rs.String(FieldFileNumber)
		if fileNumber == "" {
			continue
		}
		recordDate := NormalizeDate(rs.String(FieldDate))
		recordTime := shifts.Normalize24(rs.String(FieldTime))

		exams := rs.Records(FieldDetails)
		if len(exams) == 0 {
			exams = []Record{rec}
		}

		// Exam names an earlier record already contributed, per id. A
		// re-sent record adds nothing; repeats inside one record are kept.
		prior := make(map[string][]string)
		for _, exam := range exams {
			ex := aliases.resolve(exam)
			name := ex.String(FieldExamName)
			if name == "" {
				name = unnamedExam
			}
			tag := modality.Classify(name)

			date := NormalizeDate(ex.String(FieldExamDate))
			if date == "" {
				date = recordDate
			}
			if date == "" {
				date = today
			}
			tm := shifts.Normalize24(ex.String(FieldExamTime))
			if tm == "" {
				tm = recordTime
			}
			if tm == "" {
				tm = defaultTime
			}

			id := AppointmentID(date, fileNumber, tag)
			appt, seen := byID[id]
			if !seen {
				appt = &appointments.Appointment{
					ID:         id,
					FileNumber: fileNumber,
					ExamType:   tag,
					Date:       date,
					Time:       tm,
					Status:     appointments.StatusPending,
					CreatedAt:  now,
				}
				byID[id] = appt
				order = append(order, id)
			}
			fillString(&appt.PatientName, rs.String(FieldPatientName))
			fillString(&appt.PatientAge, rs.String(FieldPatientAge))
			fillString(&appt.DoctorName, rs.String(FieldDoctorName))
			fillString(&appt.RefNo, rs.String(FieldRefNo))

			earlier, touched := prior[id]
			if !touched {
				earlier = append([]string(nil), appt.ExamList...)
				prior[id] = earlier
			}
			if !containsExam(earlier, name) {
				appt.ExamList = append(appt.ExamList, name)
			}
		}
	}

	out := make([]appointments.Appointment, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func fillString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func containsExam(list []string, name string) bool {
	for _, existing := range list {
		if existing == name {
			return true
		}
	}
	return false
}
