// Package profile defines the family profile input: member identities and
// their per-hour weekly schedules, plus the normalization pass that makes
// schedules contiguous before simulation starts.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TimeLayout is the day+hour key format used throughout the run,
// e.g. "09-01 08:00".
const TimeLayout = "01-02 15:04"

// ScheduleSlot is one hour of a member's day.
type ScheduleSlot struct {
	Time     string `json:"time"` // "MM-DD HH:00"
	Activity string `json:"activity"`
	IsAtHome bool   `json:"is_at_home"`
}

// MemberProfile carries a member's identity and raw schedule.
type MemberProfile struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Role           string         `json:"role"`
	Age            int            `json:"age"`
	EconomicStatus string         `json:"economic_status,omitempty"`
	Income         string         `json:"income,omitempty"`
	Biography      string         `json:"biography,omitempty"`
	Schedule       []ScheduleSlot `json:"schedule"`
}

// FamilyProfile is the full household.
type FamilyProfile struct {
	FamilyID string          `json:"family_id"`
	Members  []MemberProfile `json:"members"`
}

// Load reads and validates a family profile file. Validation failure is
// fatal for the run.
func Load(path string) (*FamilyProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading family profile: %w", err)
	}

	var f FamilyProfile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing family profile %s: %w", path, err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid family profile in %s: %w", path, err)
	}

	return &f, nil
}

// Validate checks the minimum shape the engine needs: a family id, at least
// one member, unique member ids, and a non-empty schedule per member.
func (f *FamilyProfile) Validate() error {
	if f.FamilyID == "" {
		return fmt.Errorf("family_id is required")
	}
	if len(f.Members) == 0 {
		return fmt.Errorf("family has no members")
	}
	seen := make(map[string]bool, len(f.Members))
	for i, m := range f.Members {
		if m.ID == "" {
			return fmt.Errorf("member %d has no id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate member id %q", m.ID)
		}
		seen[m.ID] = true
		if m.Name == "" {
			return fmt.Errorf("member %s has no name", m.ID)
		}
		if len(m.Schedule) == 0 {
			return fmt.Errorf("member %s has an empty schedule", m.ID)
		}
	}
	return nil
}

// DayRange describes the simulated period the normalization pass must cover.
type DayRange struct {
	// Start is midnight of the first simulated day.
	Start time.Time
	// Days is the number of consecutive days.
	Days int
}

// ParseDayRange builds a DayRange from an MM-DD start key and a base year.
func ParseDayRange(startDay string, baseYear, days int) (DayRange, error) {
	t, err := time.Parse("01-02", startDay)
	if err != nil {
		return DayRange{}, fmt.Errorf("parsing start day %q: %w", startDay, err)
	}
	start := time.Date(baseYear, t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
	return DayRange{Start: start, Days: days}, nil
}

// TimeKey renders t in the run's day+hour key format.
func TimeKey(t time.Time) string {
	return t.Format(TimeLayout)
}

// TruncateHour zeroes t's minutes and seconds in its own location.
// time.Time.Truncate rounds absolute time since the epoch, which shifts
// wall-clock hours in zones with fractional UTC offsets (Asia/Kolkata,
// Kathmandu); hour keys must follow the wall clock.
func TruncateHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// ParseTimeKey parses an "MM-DD HH:MM" key against the range's base year.
// Malformed keys report an error; callers that must keep making progress
// fall back to the range start.
func (r DayRange) ParseTimeKey(key string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time key %q: %w", key, err)
	}
	return time.Date(r.Start.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.Local), nil
}

// Normalize makes every member's schedule cover every hour of the day range
// contiguously, producing exactly Days*24 slots per member. Gaps are filled
// by carrying the last known activity forward; hours before a member's first
// entry inherit that first entry. Slots with unparsable time keys are
// ignored as anchors (they cannot be placed), which still preserves
// monotonic progress over strict correctness of degenerate inputs.
func (f *FamilyProfile) Normalize(r DayRange) {
	for i := range f.Members {
		f.Members[i].Schedule = normalizeSchedule(f.Members[i].Schedule, r)
	}
}

func normalizeSchedule(raw []ScheduleSlot, r DayRange) []ScheduleSlot {
	type anchor struct {
		activity string
		isAtHome bool
	}

	anchors := make(map[time.Time]anchor, len(raw))
	for _, slot := range raw {
		t, err := r.ParseTimeKey(slot.Time)
		if err != nil {
			continue
		}
		hour := TruncateHour(t)
		anchors[hour] = anchor{activity: slot.Activity, isAtHome: slot.IsAtHome}
	}

	totalHours := r.Days * 24
	out := make([]ScheduleSlot, 0, totalHours)

	// Seed the carry with the earliest anchor so leading gaps are covered.
	carry := anchor{activity: "휴식", isAtHome: true}
	for h := 0; h < totalHours; h++ {
		if a, ok := anchors[r.Start.Add(time.Duration(h)*time.Hour)]; ok {
			carry = a
			break
		}
	}

	for h := 0; h < totalHours; h++ {
		at := r.Start.Add(time.Duration(h) * time.Hour)
		if a, ok := anchors[at]; ok {
			carry = a
		}
		out = append(out, ScheduleSlot{
			Time:     TimeKey(at),
			Activity: carry.activity,
			IsAtHome: carry.isAtHome,
		})
	}
	return out
}
