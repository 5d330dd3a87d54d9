// Package quota enforces per-modality daily limits and the fixed time-slot
// lists used when booking.
package quota

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/wolfman30/radiology-ops/internal/modality"
)

// ErrInvalidSettings is returned when a settings update breaks the rules.
var ErrInvalidSettings = errors.New("quota: invalid settings")

var slotPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Settings is the capacity rule for one modality. An empty Slots list means
// the desk free-types the time.
type Settings struct {
	Limit int      `json:"limit"`
	Slots []string `json:"slots"`
}

// FreeText reports whether no fixed slot list is configured.
func (s Settings) FreeText() bool {
	return len(s.Slots) == 0
}

// DefaultSettings returns the built-in capacity table.
func DefaultSettings() map[modality.Tag]Settings {
	return map[modality.Tag]Settings{
		modality.MRI:    {Limit: 20, Slots: hourly(8, 15)},
		modality.CT:     {Limit: 30},
		modality.US:     {Limit: 40},
		modality.XRay:   {Limit: 60},
		modality.Fluoro: {Limit: 10},
		modality.Other:  {Limit: 20},
	}
}

func hourly(from, to int) []string {
	out := make([]string, 0, to-from+1)
	for h := from; h <= to; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

// Normalize validates s and drops duplicate slots, keeping first-seen order.
func Normalize(s Settings) (Settings, error) {
	if s.Limit < 1 {
		return Settings{}, fmt.Errorf("%w: limit must be at least 1", ErrInvalidSettings)
	}
	out := Settings{Limit: s.Limit}
	seen := make(map[string]struct{}, len(s.Slots))
	for _, slot := range s.Slots {
		if !slotPattern.MatchString(slot) {
			return Settings{}, fmt.Errorf("%w: slot %q is not HH:MM", ErrInvalidSettings, slot)
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out.Slots = append(out.Slots, slot)
	}
	return out, nil
}
