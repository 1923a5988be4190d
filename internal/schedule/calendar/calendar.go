package calendar

import (
	"fmt"
	"sort"
	"time"

	"medsched-service/internal/models"
)

type View string

const (
	ViewWeek  View = "week"
	ViewMonth View = "month"
	ViewList  View = "list"
)

func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewWeek, ViewMonth, ViewList:
		return View(s), nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// DayBucket holds the bookings of a single day, ordered by start time
// and then by resource display name so equal starts render
// deterministically.
type DayBucket struct {
	Date     time.Time
	Bookings []*models.Booking
}

type Projection struct {
	View       View
	Anchor     time.Time
	RangeStart time.Time
	RangeEnd   time.Time
	Days       []DayBucket
}

// Range maps an anchor date and view mode to the concrete inclusive
// date range the view renders.
//
//   - week: the Sunday-started week containing the anchor, 7 days.
//   - month: the anchor's month widened to whole weeks on both ends, so
//     the grid always renders complete rows (leading/trailing days from
//     adjacent months appear dimmed).
//   - list: anchor through anchor+7 days.
func Range(anchor time.Time, view View) (time.Time, time.Time, error) {
	anchor = truncate(anchor)

	switch view {
	case ViewWeek:
		start := anchor.AddDate(0, 0, -int(anchor.Weekday()))
		return start, start.AddDate(0, 0, 6), nil
	case ViewMonth:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		last := first.AddDate(0, 1, -1)
		start := first.AddDate(0, 0, -int(first.Weekday()))
		end := last.AddDate(0, 0, int(time.Saturday-last.Weekday()))
		return start, end, nil
	case ViewList:
		return anchor, anchor.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown view %q", view)
	}
}

// Project buckets bookings into per-day groups over the view's range.
// Every day in the range gets a bucket, empty or not; grid views need
// the empty cells. resourceName labels bookings for the start-time
// tie-break and may be nil when ordering by id suffices.
func Project(anchor time.Time, view View, bookings []*models.Booking, resourceName map[string]string) (*Projection, error) {
	start, end, err := Range(anchor, view)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time][]*models.Booking)
	for _, b := range bookings {
		d := truncate(b.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		byDate[d] = append(byDate[d], b)
	}

	nameOf := func(resourceID string) string {
		if resourceName == nil {
			return resourceID
		}
		if n, ok := resourceName[resourceID]; ok {
			return n
		}
		return resourceID
	}

	p := &Projection{
		View:       view,
		Anchor:     truncate(anchor),
		RangeStart: start,
		RangeEnd:   end,
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := byDate[d]
		sort.Slice(day, func(i, j int) bool {
			if day[i].Start != day[j].Start {
				return day[i].Start < day[j].Start
			}
			ni, nj := nameOf(day[i].ResourceID), nameOf(day[j].ResourceID)
			if ni != nj {
				return ni < nj
			}
			return day[i].ID < day[j].ID
		})
		p.Days = append(p.Days, DayBucket{Date: d, Bookings: day})
	}

	return p, nil
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
