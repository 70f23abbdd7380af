// Package timeline expands normalized per-hour schedules into a single
// globally time-ordered stream of fixed-width slot events, consumed exactly
// once by the simulation engine.
package timeline

import (
	"sort"
	"time"

	"github.com/evalgap/homesim/internal/profile"
)

// Event is one (member, sub-slot) entry of the merged timeline.
type Event struct {
	// Timestamp is the absolute slot time.
	Timestamp time.Time
	// TimeKey is the slot time in the run's "MM-DD HH:MM" format.
	TimeKey string
	// HourKey is the owning hour, "MM-DD HH:00"; used to detect boundary
	// crossings for memory decay.
	HourKey string

	MemberID   string
	MemberName string
	// MemberIndex is the member's declaration order in the profile;
	// same-timestamp ties are processed in this order.
	MemberIndex int

	// Activity and IsAtHome are inherited from the owning hourly slot.
	Activity string
	IsAtHome bool
}

// Build expands each member's normalized schedule into sub-slots of
// stepMinutes width and merges them into one stream sorted by timestamp,
// ties broken by member declaration order. Slots with malformed time keys
// fall back to the range start rather than aborting the run.
func Build(family *profile.FamilyProfile, r profile.DayRange, stepMinutes int) []Event {
	if stepMinutes <= 0 {
		stepMinutes = 15
	}
	perHour := 60 / stepMinutes

	var events []Event
	for mi, member := range family.Members {
		for _, slot := range member.Schedule {
			hourStart, err := r.ParseTimeKey(slot.Time)
			if err != nil {
				hourStart = r.Start
			}
			hourKey := profile.TimeKey(profile.TruncateHour(hourStart))
			for q := 0; q < perHour; q++ {
				at := hourStart.Add(time.Duration(q*stepMinutes) * time.Minute)
				events = append(events, Event{
					Timestamp:   at,
					TimeKey:     profile.TimeKey(at),
					HourKey:     hourKey,
					MemberID:    member.ID,
					MemberName:  member.Name,
					MemberIndex: mi,
					Activity:    slot.Activity,
					IsAtHome:    slot.IsAtHome,
				})
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].MemberIndex < events[j].MemberIndex
	})

	return events
}
