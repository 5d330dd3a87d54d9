// Package shifts parses human-entered shift and queue times into canonical
// 24-hour "HH:MM" strings. Nothing here returns an error: unparseable input
// degrades to a miss and the caller decides what to drop.
package shifts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Range is one shift. End is empty for a segment that carried a single time.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

var (
	segmentSplit = regexp.MustCompile(`(?i)\s*(?:/|,|&|\band\b)\s*`)
	rangeSplit   = regexp.MustCompile(`(?i)\s*(?:-|–|—|\bto\b)\s*`)
	clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(?::\d{2})?$`)
	isoDateTime  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ](\d{1,2}:\d{2}(?::\d{2})?)`)
)

// Markers are checked longest first so "صباحاً" is consumed before "ص".
var (
	pmMarkers = []string{"p.m.", "p.m", "pm", "مساءً", "مساءا", "مساء", "م"}
	amMarkers = []string{"a.m.", "a.m", "am", "صباحاً", "صباحا", "صباح", "ص"}
)

// Parse splits free text such as "9am-5pm / 9pm-7am" into shifts. Segments
// that fail to parse are dropped.
func Parse(text string) []Range {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []Range
	for _, segment := range segmentSplit.Split(text, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		parts := rangeSplit.Split(segment, -1)
		switch {
		case len(parts) == 1:
			if start, ok := NormalizeTime(parts[0]); ok {
				out = append(out, Range{Start: start})
			}
		case len(parts) == 2:
			start, ok := NormalizeTime(parts[0])
			if !ok {
				continue
			}
			end, ok := NormalizeTime(parts[1])
			if !ok {
				continue
			}
			out = append(out, Range{Start: start, End: end})
		}
	}
	return out
}

// NormalizeTime converts a single time token to "HH:MM".
func NormalizeTime(token string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return "", false
	}

	switch t {
	case "12mn", "12 mn", "midnight", "12 midnight":
		return "24:00", true
	case "12n", "12 n", "noon", "12 noon":
		return "12:00", true
	}

	pm, am := false, false
	if rest, ok := trimMarker(t, pmMarkers); ok {
		pm, t = true, rest
	} else if rest, ok := trimMarker(t, amMarkers); ok {
		am, t = true, rest
	}
	t = strings.ReplaceAll(t, ".", ":")
	t = strings.TrimSpace(t)

	m := clockPattern.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	minute := 0
	if m[2] != "" {
		if minute, err = strconv.Atoi(m[2]); err != nil {
			return "", false
		}
	}

	switch {
	case pm && hour < 12:
		hour += 12
	case am && hour == 12:
		hour = 0
	}
	if hour > 24 || minute > 59 || (hour == 24 && minute != 0) {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// Normalize24 normalizes a feed time value, accepting clock strings, ISO
// datetimes and anything NormalizeTime understands. It returns "" on a miss.
func Normalize24(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := isoDateTime.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if out, ok := NormalizeTime(raw); ok {
		return out
	}
	return ""
}

func trimMarker(t string, markers []string) (string, bool) {
	for _, marker := range markers {
		if strings.HasSuffix(t, marker) {
			rest := strings.TrimSpace(strings.TrimSuffix(t, marker))
			if rest == "" {
				return "", false
			}
			return rest, true
		}
	}
	return t, false
}
