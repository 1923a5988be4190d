package recurrence

import (
	"time"

	"medsched-service/internal/models"
)

// Dates lists the days in [from, to] the template admits, clamped to
// the template's own date bounds. The weekday pattern filters days; an
// empty pattern admits all of them. Iteration is day by day; weekly
// cadence falls out of the weekday set.
func Dates(tpl *models.Template, from, to time.Time) []time.Time {
	from = truncateToDate(from)
	to = truncateToDate(to)

	if !tpl.StartDate.IsZero() && from.Before(truncateToDate(tpl.StartDate)) {
		from = truncateToDate(tpl.StartDate)
	}
	if !tpl.EndDate.IsZero() && to.After(truncateToDate(tpl.EndDate)) {
		to = truncateToDate(tpl.EndDate)
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if tpl.Matches(d) {
			dates = append(dates, d)
		}
	}

	return dates
}

// Stamp materializes a booking draft from the template for the given
// date. The caller runs it through the normal create path, so conflict
// checking is never bypassed.
func Stamp(tpl *models.Template, date time.Time) *models.Booking {
	return &models.Booking{
		ResourceID: tpl.ResourceID,
		Date:       truncateToDate(date),
		Start:      tpl.Start,
		End:        tpl.End,
		Kind:       models.KindAppointment,
		Status:     models.BookingActive,
		Category:   tpl.Category,
		TemplateID: &tpl.ID,
	}
}

// truncateToDate returns the date with zero time in its location.
func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
