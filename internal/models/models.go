package models

import (
	"fmt"
	"time"
)

type ResourceKind string

const (
	ResourceClinician ResourceKind = "clinician"
	ResourceRoom      ResourceKind = "room"
)

type Resource struct {
	ID          string       `db:"resource_id"`
	Name        string       `db:"name"`
	Kind        ResourceKind `db:"kind"`
	Category    string       `db:"category"`
	Location    string       `db:"location"`
	Capacity    *int         `db:"capacity"`
	OwnerUserID *string      `db:"owner_user_id"`
}

type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingBlocked   BookingStatus = "blocked"
	BookingCancelled BookingStatus = "cancelled"
)

type BookingKind string

const (
	KindAppointment BookingKind = "appointment"
	KindTimeBlock   BookingKind = "timeblock"
)

// Booking reserves one resource for the half-open interval [Start, End)
// on Date. Start and End are minutes from midnight. A time block is a
// Booking with Kind=timeblock and Status=blocked; it takes part in
// conflict detection exactly like an appointment.
type Booking struct {
	ID         string        `db:"booking_id"`
	ResourceID string        `db:"resource_id"`
	Date       time.Time     `db:"booking_date"`
	Start      int           `db:"start_minute"`
	End        int           `db:"end_minute"`
	Kind       BookingKind   `db:"kind"`
	Status     BookingStatus `db:"status"`
	Category   string        `db:"category"`
	Note       string        `db:"note"`
	TemplateID *string       `db:"template_id"`
	CreatedBy  string        `db:"created_by"`
}

// Live reports whether the booking still occupies its interval.
// Cancelled bookings are kept for audit but never conflict.
func (b *Booking) Live() bool {
	return b.Status != BookingCancelled
}

type Template struct {
	ID         string         `db:"template_id"`
	ResourceID string         `db:"resource_id"`
	Weekdays   []time.Weekday `db:"weekdays"`
	Start      int            `db:"start_minute"`
	End        int            `db:"end_minute"`
	Category   string         `db:"category"`
	StartDate  time.Time      `db:"start_date"`
	EndDate    time.Time      `db:"end_date"`
	Active     bool           `db:"active"`
}

// Matches reports whether the template admits bookings on date. An empty
// weekday set admits every weekday.
func (t *Template) Matches(date time.Time) bool {
	if len(t.Weekdays) == 0 {
		return true
	}
	wd := date.Weekday()
	for _, d := range t.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// Interval is a half-open minute range [Start, End) within one day.
type Interval struct {
	Start int
	End   int
}

// Conflict pairs two live bookings on the same resource and date whose
// intervals overlap. Derived on demand, never stored.
type Conflict struct {
	ResourceID string
	Date       time.Time
	BookingA   string
	BookingB   string
}

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleClinician    Role = "doctor"
	RoleReceptionist Role = "receptionist"
)

// Actor identifies the authenticated caller; credentials are verified
// upstream, the engine only enforces mutation rights.
type Actor struct {
	ID   string
	Role Role
}

const MinutesPerDay = 24 * 60

const DateLayout = "2006-01-02"

// ParseClock parses "15:04" into minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes from midnight as "15:04".
func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseDate parses "2006-01-02" into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
