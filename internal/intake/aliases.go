package intake

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Canonical field names understood by the grouping step.
const (
	FieldPatientName = "patientName"
	FieldFileNumber  = "fileNumber"
	FieldPatientAge  = "patientAge"
	FieldDoctorName  = "doctorName"
	FieldRefNo       = "refNo"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldExamName    = "examName"
	FieldExamTime    = "examTime"
	FieldExamDate    = "examDate"
	FieldDetails     = "details"
)

// AliasTable maps a canonical field to the source field names that may carry
// it, in priority order. Supporting a new feed schema means adding aliases.
type AliasTable map[string][]string

// DefaultAliases covers the HIS schemas seen so far.
var DefaultAliases = AliasTable{
	FieldPatientName: {"patientName", "patient_name", "patientFullName", "fullName", "full_name", "patName", "patient", "name"},
	FieldFileNumber:  {"fileNumber", "file_number", "fileNo", "file_no", "mrn", "medicalRecordNumber", "patientId", "patient_id", "patientNo"},
	FieldPatientAge:  {"patientAge", "patient_age", "age", "ageYears"},
	FieldDoctorName:  {"doctorName", "doctor_name", "doctor", "physician", "referringDoctor", "referring_physician", "orderingPhysician"},
	FieldRefNo:       {"refNo", "ref_no", "referenceNo", "referenceNumber", "accessionNumber", "accession", "orderNumber", "orderNo"},
	FieldDate:        {"date", "visitDate", "visit_date", "appointmentDate", "orderDate", "order_date", "requestDate"},
	FieldTime:        {"time", "visitTime", "visit_time", "appointmentTime", "queueTime", "orderTime", "requestTime"},
	FieldExamName:    {"examName", "exam_name", "exam", "procedureName", "procedure_name", "procedure", "serviceName", "service_name", "service", "studyDescription", "description", "itemName"},
	FieldExamTime:    {"examTime", "exam_time", "time", "scheduledTime", "startTime", "orderTime"},
	FieldExamDate:    {"examDate", "exam_date", "date", "scheduledDate", "studyDate", "orderDate"},
	FieldDetails:     {"details", "examDetails", "exam_details", "exams", "procedures", "orders", "services", "studies", "orderItems"},
}

// Record is one raw feed object of unknown shape.
type Record map[string]any

// folded indexes r by lower-cased key so lookups are case-insensitive. The
// first key seen wins when two differ only by case.
func (r Record) folded() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		lk := strings.ToLower(k)
		if _, ok := out[lk]; !ok {
			out[lk] = v
		}
	}
	return out
}

type resolver struct {
	aliases AliasTable
	fields  map[string]any
}

func (t AliasTable) resolve(r Record) resolver {
	return resolver{aliases: t, fields: r.folded()}
}

// String returns the first non-empty scalar among the aliases of field.
func (rs resolver) String(field string) string {
	for _, alias := range rs.aliases[field] {
		v, ok := rs.fields[strings.ToLower(alias)]
		if !ok {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// Records returns the first alias of field that holds a list of objects.
func (rs resolver) Records(field string) []Record {
	for _, alias := range rs.aliases[field] {
		v, ok := rs.fields[strings.ToLower(alias)]
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]Record, 0, len(list))
		for _, item := range list {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, Record(obj))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
