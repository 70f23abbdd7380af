package timeline

import (
	"testing"
	"time"

	"github.com/evalgap/homesim/internal/profile"
)

func testRange(t *testing.T, days int) profile.DayRange {
	t.Helper()
	r, err := profile.ParseDayRange("09-01", 2025, days)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func twoMemberFamily() *profile.FamilyProfile {
	return &profile.FamilyProfile{
		FamilyID: "F1",
		Members: []profile.MemberProfile{
			{ID: "M1", Name: "김철수", Schedule: []profile.ScheduleSlot{
				{Time: "09-01 08:00", Activity: "아침 준비", IsAtHome: true},
			}},
			{ID: "M2", Name: "이영희", Schedule: []profile.ScheduleSlot{
				{Time: "09-01 08:00", Activity: "출근 준비", IsAtHome: true},
			}},
		},
	}
}

func TestBuild_FourSubSlotsPerHour(t *testing.T) {
	r := testRange(t, 1)
	events := Build(twoMemberFamily(), r, 15)

	if len(events) != 2*4 {
		t.Fatalf("got %d events, want 8", len(events))
	}

	wantOffsets := []int{0, 15, 30, 45}
	var m1 []Event
	for _, ev := range events {
		if ev.MemberID == "M1" {
			m1 = append(m1, ev)
		}
	}
	if len(m1) != 4 {
		t.Fatalf("M1 has %d sub-slots, want 4", len(m1))
	}
	for i, ev := range m1 {
		if ev.Timestamp.Minute() != wantOffsets[i] {
			t.Errorf("M1 sub-slot %d minute = %d, want %d", i, ev.Timestamp.Minute(), wantOffsets[i])
		}
		if ev.Activity != "아침 준비" || !ev.IsAtHome {
			t.Errorf("sub-slot did not inherit hour fields: %+v", ev)
		}
		if ev.HourKey != "09-01 08:00" {
			t.Errorf("hour key = %q", ev.HourKey)
		}
	}
}

func TestBuild_OrderingAndTies(t *testing.T) {
	r := testRange(t, 1)
	events := Build(twoMemberFamily(), r, 15)

	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.Timestamp.Before(prev.Timestamp) {
			t.Fatalf("events out of order at %d: %v before %v", i, cur.Timestamp, prev.Timestamp)
		}
		if cur.Timestamp.Equal(prev.Timestamp) && cur.MemberIndex < prev.MemberIndex {
			t.Fatalf("tie at %v not in declaration order", cur.Timestamp)
		}
	}

	// Ties: at each timestamp M1 precedes M2.
	if events[0].MemberID != "M1" || events[1].MemberID != "M2" {
		t.Errorf("tie order wrong: %s then %s", events[0].MemberID, events[1].MemberID)
	}
}

func TestBuild_MalformedTimeFallsBackToRangeStart(t *testing.T) {
	r := testRange(t, 1)
	family := &profile.FamilyProfile{
		FamilyID: "F1",
		Members: []profile.MemberProfile{
			{ID: "M1", Name: "김철수", Schedule: []profile.ScheduleSlot{
				{Time: "25:99 nonsense", Activity: "수면", IsAtHome: true},
			}},
		},
	}

	events := Build(family, r, 15)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if !events[0].Timestamp.Equal(r.Start) {
		t.Errorf("malformed key should fall back to range start, got %v", events[0].Timestamp)
	}
}

func TestBuild_FullWeekVolume(t *testing.T) {
	r := testRange(t, 7)
	family := twoMemberFamily()
	family.Normalize(r)

	events := Build(family, r, 15)
	want := 2 * 7 * 24 * 4
	if len(events) != want {
		t.Fatalf("got %d events, want %d", len(events), want)
	}

	// The merged stream must never step backwards in time.
	var last time.Time
	for _, ev := range events {
		if ev.Timestamp.Before(last) {
			t.Fatal("timeline is not monotonic")
		}
		last = ev.Timestamp
	}
}

func TestBuild_FractionalOffsetZoneHourKeys(t *testing.T) {
	// In a UTC+05:30 zone, absolute-time truncation used to split one
	// wall-clock hour across two HourKeys, double-firing memory decay.
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("zone unavailable: %v", err)
	}
	old := time.Local
	time.Local = loc
	t.Cleanup(func() { time.Local = old })

	r := testRange(t, 1)
	family := &profile.FamilyProfile{
		FamilyID: "F1",
		Members: []profile.MemberProfile{
			{ID: "M1", Name: "김철수", Schedule: []profile.ScheduleSlot{
				{Time: "09-01 08:00", Activity: "아침 준비", IsAtHome: true},
			}},
		},
	}
	events := Build(family, r, 15)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	for _, ev := range events {
		if ev.HourKey != "09-01 08:00" {
			t.Errorf("event %s: hour key = %q, want 09-01 08:00", ev.TimeKey, ev.HourKey)
		}
	}
}
