package calendar

import (
	"testing"
	"time"

	"medsched-service/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRangeWeek(t *testing.T) {
	// 2024-06-05 is a Wednesday; its Sunday-started week is 06-02..06-08.
	anchors := []string{"2024-06-02", "2024-06-05", "2024-06-08"}

	for _, a := range anchors {
		anchor := day(a)
		start, end, err := Range(anchor, ViewWeek)
		if err != nil {
			t.Fatalf("Range: %v", err)
		}

		if start.Weekday() != time.Sunday {
			t.Errorf("anchor %s: week starts on %s, want Sunday", a, start.Weekday())
		}
		if got := end.Sub(start).Hours() / 24; got != 6 {
			t.Errorf("anchor %s: span %v days, want 6", a, got)
		}
		if anchor.Before(start) || anchor.After(end) {
			t.Errorf("anchor %s outside range [%s, %s]", a, start, end)
		}
	}
}

func TestRangeMonth(t *testing.T) {
	tests := []struct {
		anchor string
		start  string
		end    string
	}{
		// June 2024: 1st is a Saturday, 30th is a Sunday.
		{"2024-06-15", "2024-05-26", "2024-07-06"},
		// February 2026: 1st is a Sunday, 28th is a Saturday; no widening.
		{"2026-02-10", "2026-02-01", "2026-02-28"},
	}

	for _, tt := range tests {
		start, end, err := Range(day(tt.anchor), ViewMonth)
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		if got := start.Format("2006-01-02"); got != tt.start {
			t.Errorf("anchor %s: start = %s, want %s", tt.anchor, got, tt.start)
		}
		if got := end.Format("2006-01-02"); got != tt.end {
			t.Errorf("anchor %s: end = %s, want %s", tt.anchor, got, tt.end)
		}

		days := int(end.Sub(start).Hours()/24) + 1
		if days%7 != 0 {
			t.Errorf("anchor %s: grid spans %d days, not whole weeks", tt.anchor, days)
		}
	}
}

func TestRangeList(t *testing.T) {
	start, end, err := Range(day("2024-06-05"), ViewList)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if !start.Equal(day("2024-06-05")) || !end.Equal(day("2024-06-12")) {
		t.Errorf("list range = [%s, %s], want [2024-06-05, 2024-06-12]", start, end)
	}
}

func TestProjectOrdering(t *testing.T) {
	bookings := []*models.Booking{
		{ID: "b3", ResourceID: "r2", Date: day("2024-06-05"), Start: 600, End: 630, Status: models.BookingActive},
		{ID: "b1", ResourceID: "r1", Date: day("2024-06-05"), Start: 540, End: 570, Status: models.BookingActive},
		{ID: "b2", ResourceID: "r1", Date: day("2024-06-05"), Start: 600, End: 660, Status: models.BookingActive},
	}
	names := map[string]string{"r1": "Dr. Adams", "r2": "Dr. Brown"}

	p, err := Project(day("2024-06-05"), ViewWeek, bookings, names)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	if len(p.Days) != 7 {
		t.Fatalf("got %d day buckets, want 7", len(p.Days))
	}

	var wednesday *DayBucket
	for i := range p.Days {
		if p.Days[i].Date.Equal(day("2024-06-05")) {
			wednesday = &p.Days[i]
		}
	}
	if wednesday == nil {
		t.Fatal("anchor day missing from projection")
	}

	want := []string{"b1", "b2", "b3"} // by start, then resource name
	for i, id := range want {
		if wednesday.Bookings[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, wednesday.Bookings[i].ID, id)
		}
	}
}

func TestProjectDropsOutOfRange(t *testing.T) {
	bookings := []*models.Booking{
		{ID: "in", ResourceID: "r1", Date: day("2024-06-05"), Start: 540, End: 570},
		{ID: "out", ResourceID: "r1", Date: day("2024-07-05"), Start: 540, End: 570},
	}

	p, err := Project(day("2024-06-05"), ViewWeek, bookings, nil)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	total := 0
	for _, d := range p.Days {
		total += len(d.Bookings)
	}
	if total != 1 {
		t.Errorf("projection holds %d bookings, want 1", total)
	}
}
