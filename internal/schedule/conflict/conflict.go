package conflict

import (
	"sort"
	"time"

	"medsched-service/internal/models"
)

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching boundaries (aEnd == bStart) do not
// overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Pairs computes the full conflict graph for one resource's bookings.
// Cancelled bookings never conflict. Bookings on different dates never
// conflict. Within a date the detector sorts by start and sweeps,
// keeping only intervals still open, so dense schedules stay at
// O(n log n + k) for k reported pairs. All pairs are reported, not just
// the first.
func Pairs(bookings []*models.Booking) []models.Conflict {
	byDate := make(map[time.Time][]*models.Booking)
	for _, b := range bookings {
		if !b.Live() {
			continue
		}
		byDate[b.Date] = append(byDate[b.Date], b)
	}

	var conflicts []models.Conflict
	for date, day := range byDate {
		sort.Slice(day, func(i, j int) bool {
			if day[i].Start != day[j].Start {
				return day[i].Start < day[j].Start
			}
			if day[i].End != day[j].End {
				return day[i].End < day[j].End
			}
			return day[i].ID < day[j].ID
		})

		var open []*models.Booking
		for _, b := range day {
			kept := open[:0]
			for _, o := range open {
				if o.End > b.Start {
					kept = append(kept, o)
					conflicts = append(conflicts, models.Conflict{
						ResourceID: b.ResourceID,
						Date:       date,
						BookingA:   o.ID,
						BookingB:   b.ID,
					})
				}
			}
			open = append(kept, b)
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].Date.Equal(conflicts[j].Date) {
			return conflicts[i].Date.Before(conflicts[j].Date)
		}
		if conflicts[i].BookingA != conflicts[j].BookingA {
			return conflicts[i].BookingA < conflicts[j].BookingA
		}
		return conflicts[i].BookingB < conflicts[j].BookingB
	})

	return conflicts
}

// Check returns the ids of live bookings colliding with the candidate,
// skipping excludeID (the booking being updated, if any). This is the
// fast-fail precheck for the create/update path; the store's constraint
// remains authoritative under concurrent writers.
func Check(existing []*models.Booking, candidate *models.Booking, excludeID string) []string {
	var ids []string
	for _, b := range existing {
		if b.ID == excludeID || !b.Live() {
			continue
		}
		if !b.Date.Equal(candidate.Date) || b.ResourceID != candidate.ResourceID {
			continue
		}
		if Overlaps(b.Start, b.End, candidate.Start, candidate.End) {
			ids = append(ids, b.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
