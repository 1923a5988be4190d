package availability

import (
	"sort"

	"medsched-service/internal/models"
)

// Merge collapses overlapping or touching busy intervals into a minimal
// sorted set. Touching intervals merge: [540,570) and [570,600) become
// [540,600), matching the detector's half-open semantics where touching
// is not a conflict but leaves no gap either.
func Merge(busy []models.Interval) []models.Interval {
	if len(busy) == 0 {
		return nil
	}

	sorted := make([]models.Interval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []models.Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}

// FreeSlots subtracts the busy intervals from the operating window and
// returns the remaining gaps at least slotDuration minutes long. Busy
// time outside the window is clamped away first.
func FreeSlots(window models.Interval, busy []models.Interval, slotDuration int) []models.Interval {
	if slotDuration <= 0 || window.End <= window.Start {
		return nil
	}

	var clamped []models.Interval
	for _, iv := range busy {
		if iv.End <= window.Start || iv.Start >= window.End {
			continue
		}
		if iv.Start < window.Start {
			iv.Start = window.Start
		}
		if iv.End > window.End {
			iv.End = window.End
		}
		clamped = append(clamped, iv)
	}

	var free []models.Interval
	cursor := window.Start
	for _, iv := range Merge(clamped) {
		if iv.Start-cursor >= slotDuration {
			free = append(free, models.Interval{Start: cursor, End: iv.Start})
		}
		cursor = iv.End
	}
	if window.End-cursor >= slotDuration {
		free = append(free, models.Interval{Start: cursor, End: window.End})
	}

	return free
}
