package modality

import "strings"

// Tag identifies a radiology modality.
type Tag string

const (
	MRI    Tag = "MRI"
	CT     Tag = "CT"
	US     Tag = "US"
	XRay   Tag = "X-RAY"
	Fluoro Tag = "FLUO"
	Other  Tag = "OTHER"
)

var ordered = []Tag{MRI, CT, US, XRay, Fluoro, Other}

var displayNames = map[Tag]string{
	MRI:    "Magnetic Resonance Imaging",
	CT:     "Computed Tomography",
	US:     "Ultrasound",
	XRay:   "X-Ray",
	Fluoro: "Fluoroscopy",
	Other:  "Other",
}

// All returns every tag in display order.
func All() []Tag {
	out := make([]Tag, len(ordered))
	copy(out, ordered)
	return out
}

// Parse accepts a tag in any case, with or without the X-RAY dash.
func Parse(raw string) (Tag, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	switch normalized {
	case "XRAY", "X_RAY", "XR":
		return XRay, true
	case "FLUORO", "FLUOROSCOPY":
		return Fluoro, true
	case "ULTRASOUND", "U/S":
		return US, true
	}
	for _, tag := range ordered {
		if string(tag) == normalized {
			return tag, true
		}
	}
	return "", false
}

// ID returns the identifier-safe form used inside appointment keys.
func (t Tag) ID() string {
	var b strings.Builder
	for _, r := range string(t) {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DisplayName returns the long modality name.
func (t Tag) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return displayNames[Other]
}

// Valid reports whether t is one of the fixed tags.
func (t Tag) Valid() bool {
	_, ok := displayNames[t]
	return ok
}
