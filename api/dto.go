package api

type ResourceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	Capacity    *int   `json:"capacity,omitempty"`
	OwnerUserID string `json:"owner_user_id,omitempty"`
}

type BookingRequest struct {
	ResourceID string `json:"resource_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime    string `json:"end_time" validate:"required,datetime=15:04"`
	Kind       string `json:"kind" validate:"omitempty,oneof=appointment timeblock"`
	Category   string `json:"category"`
	Note       string `json:"note"`
}

type BookingResponse struct {
	ID         string  `json:"id"`
	ResourceID string  `json:"resource_id"`
	Date       string  `json:"date"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Category   string  `json:"category,omitempty"`
	Note       string  `json:"note,omitempty"`
	TemplateID *string `json:"template_id,omitempty"`
	CreatedBy  string  `json:"created_by,omitempty"`
}

type DuplicateRequest struct {
	TargetDate string `json:"target_date" validate:"required,datetime=2006-01-02"`
}

type ConflictResponse struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	BookingA   string `json:"booking_a"`
	BookingB   string `json:"booking_b"`
}

type IntervalResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type CalendarDayResponse struct {
	Date        string            `json:"date"`
	Bookings    []BookingResponse `json:"bookings"`
	ConflictIDs []string          `json:"conflicting_booking_ids,omitempty"`
}

type CalendarResponse struct {
	View       string                `json:"view"`
	Anchor     string                `json:"anchor"`
	RangeStart string                `json:"range_start"`
	RangeEnd   string                `json:"range_end"`
	Days       []CalendarDayResponse `json:"days"`
}

type TemplateRequest struct {
	ResourceID string   `json:"resource_id" validate:"required"`
	Weekdays   []string `json:"weekdays"`
	StartTime  string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime    string   `json:"end_time" validate:"required,datetime=15:04"`
	Category   string   `json:"category"`
	StartDate  string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	Active     bool     `json:"active"`
}

type TemplateResponse struct {
	ID         string   `json:"id"`
	ResourceID string   `json:"resource_id"`
	Weekdays   []string `json:"weekdays"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Category   string   `json:"category,omitempty"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Active     bool     `json:"active"`
}

// ApplyTemplateRequest targets either a single date or an inclusive
// range; exactly one form must be supplied.
type ApplyTemplateRequest struct {
	TargetDate string `json:"target_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	From       string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To         string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ApplyOutcomeResponse reports one date of a template expansion. Dates
// are independent: a conflict on one never rolls back the others.
type ApplyOutcomeResponse struct {
	Date        string           `json:"date"`
	Status      string           `json:"status"` // created | conflict | invalid | failed
	Booking     *BookingResponse `json:"booking,omitempty"`
	Message     string           `json:"message,omitempty"`
	ConflictIDs []string         `json:"conflicting_booking_ids,omitempty"`
}
