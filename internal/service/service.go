package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"medsched-service/api"
	"medsched-service/internal/lock"
	"medsched-service/internal/models"
	"medsched-service/internal/schedule/conflict"
	"medsched-service/internal/storage"
	"medsched-service/pkg/response"
)

type Service struct {
	store  Store
	locker lock.Locker
	cache  Cache

	dayOpen      int
	dayClose     int
	horizonDays  int
	lockTTL      time.Duration
	storeTimeout time.Duration
	cacheTTL     time.Duration

	now func() time.Time
}

type Store interface {
	BeginTx(ctx context.Context) (storage.Tx, error)

	// Resources
	ListResources(ctx context.Context, kind *models.ResourceKind) ([]*models.Resource, error)
	GetResource(ctx context.Context, id string) (*models.Resource, error)

	// Bookings
	CreateBooking(ctx context.Context, tx storage.Tx, b *models.Booking) (string, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, resourceIDs []string, from, to *time.Time) ([]*models.Booking, error)
	ListResourceDay(ctx context.Context, tx storage.Tx, resourceID string, date time.Time) ([]*models.Booking, error)
	UpdateBooking(ctx context.Context, tx storage.Tx, b *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error

	// Templates
	CreateTemplate(ctx context.Context, tpl *models.Template) (string, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	UpdateTemplate(ctx context.Context, tpl *models.Template) error
	DeleteTemplate(ctx context.Context, id string) error
}

// Cache serves projection and availability reads between mutations.
// Invalidation is best effort: entries also expire by TTL.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	InvalidateResourceDay(ctx context.Context, resourceID string, date time.Time) error
}

type Options struct {
	DayOpen      int // operating window start, minutes from midnight
	DayClose     int // operating window end
	HorizonDays  int // bookings accepted at most this many days out
	LockTTL      time.Duration
	StoreTimeout time.Duration
	CacheTTL     time.Duration
	Now          func() time.Time
}

func NewService(store Store, locker lock.Locker, cache Cache, opts Options) *Service {
	if opts.DayClose == 0 {
		opts.DayOpen, opts.DayClose = 8*60, 18*60
	}
	if opts.HorizonDays == 0 {
		opts.HorizonDays = 365
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:        store,
		locker:       locker,
		cache:        cache,
		dayOpen:      opts.DayOpen,
		dayClose:     opts.DayClose,
		horizonDays:  opts.HorizonDays,
		lockTTL:      opts.LockTTL,
		storeTimeout: opts.StoreTimeout,
		cacheTTL:     opts.CacheTTL,
		now:          opts.Now,
	}
}

// storeCtx bounds a store call by the configured timeout.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// surface rewrites a deadline expiry into the timeout sentinel. Mutating
// callers never auto-retry on it; reads may.
func surface(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return response.ErrTimeout
	}
	return err
}

// authorize enforces mutation rights: admins mutate anything, clinician
// schedules belong to their owner, rooms are open to receptionists.
func authorize(actor models.Actor, res *models.Resource) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}

	switch res.Kind {
	case models.ResourceClinician:
		if res.OwnerUserID != nil && actor.ID == *res.OwnerUserID {
			return nil
		}
	case models.ResourceRoom:
		if actor.Role == models.RoleReceptionist {
			return nil
		}
	}

	return response.ErrForbidden
}

func (s *Service) validateInterval(date time.Time, start, end int) error {
	if start >= end {
		return fmt.Errorf("start must be before end: %w", response.ErrValidation)
	}
	if start < 0 || end > models.MinutesPerDay {
		return fmt.Errorf("interval outside the day: %w", response.ErrValidation)
	}

	today := truncateToDate(s.now(), date.Location())
	horizon := today.AddDate(0, 0, s.horizonDays)
	if date.After(horizon) {
		return fmt.Errorf("date beyond the %d-day horizon: %w", s.horizonDays, response.ErrValidation)
	}

	return nil
}

// Resources

func (s *Service) ListResources(ctx context.Context, kind *string) ([]*api.ResourceResponse, error) {
	const op = "service.ListResources"

	var kindFilter *models.ResourceKind
	if kind != nil {
		k := models.ResourceKind(*kind)
		if k != models.ResourceClinician && k != models.ResourceRoom {
			return nil, fmt.Errorf("%s: unknown kind %q: %w", op, *kind, response.ErrValidation)
		}
		kindFilter = &k
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	resources, err := s.store.ListResources(sctx, kindFilter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	result := make([]*api.ResourceResponse, 0, len(resources))
	for _, r := range resources {
		result = append(result, toResourceResponse(r))
	}

	return result, nil
}

// Bookings

func (s *Service) CreateBooking(ctx context.Context, actor models.Actor, req *api.BookingRequest) (*api.BookingResponse, error) {
	const op = "service.CreateBooking"

	draft, err := s.draftFromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	draft.CreatedBy = actor.ID

	booking, err := s.createChecked(ctx, actor, draft)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toBookingResponse(booking), nil
}

// createChecked is the single conflict-checked write path: everything
// that creates a booking (create, duplicate, template application) runs
// through it. The per-day lock and the FOR UPDATE read serialize the
// check against concurrent writers; the store's exclusion constraint
// backstops writers that bypass the lock.
func (s *Service) createChecked(ctx context.Context, actor models.Actor, draft *models.Booking) (*models.Booking, error) {
	const op = "service.createChecked"

	if err := s.validateInterval(draft.Date, draft.Start, draft.End); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	resource, err := s.store.GetResource(sctx, draft.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if err := authorize(actor, resource); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lockKey := lock.ResourceDayKey(draft.ResourceID, draft.Date)
	locked, err := s.locker.Lock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	tx, err := s.store.BeginTx(sctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, surface(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	day, err := s.store.ListResourceDay(sctx, tx, draft.ResourceID, draft.Date)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if ids := conflict.Check(day, draft, ""); len(ids) > 0 {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", op, &response.ConflictError{BookingIDs: ids})
	}

	draft.ID = uuid.NewString()
	if _, err := s.store.CreateBooking(sctx, tx, draft); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: create booking: %w", op, surface(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, surface(err))
	}

	s.invalidateDay(ctx, draft.ResourceID, draft.Date)

	return draft, nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (*api.BookingResponse, error) {
	const op = "service.GetBooking"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	booking, err := s.store.GetBooking(sctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	return toBookingResponse(booking), nil
}

func (s *Service) ListBookings(ctx context.Context, resourceID *string, from, to *time.Time) ([]*api.BookingResponse, error) {
	const op = "service.ListBookings"

	var ids []string
	if resourceID != nil {
		ids = []string{*resourceID}
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	bookings, err := s.store.ListBookings(sctx, ids, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	result := make([]*api.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		result = append(result, toBookingResponse(b))
	}

	return result, nil
}

func (s *Service) UpdateBooking(ctx context.Context, actor models.Actor, id string, req *api.BookingRequest) (*api.BookingResponse, error) {
	const op = "service.UpdateBooking"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	booking, err := s.store.GetBooking(sctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if !booking.Live() {
		return nil, fmt.Errorf("%s: cancelled bookings must be re-created: %w", op, response.ErrValidation)
	}

	if req.ResourceID != "" && req.ResourceID != booking.ResourceID {
		return nil, fmt.Errorf("%s: a booking cannot move between resources: %w", op, response.ErrValidation)
	}

	patch, err := s.draftFromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// The patch always compares against the booking's own resource; an
	// omitted resource_id must not slip it out of the conflict set.
	patch.ResourceID = booking.ResourceID

	// Omitted kind keeps the booking what it was.
	if req.Kind == "" {
		patch.Kind = booking.Kind
		patch.Status = statusForKind(booking.Kind)
	}

	if err := s.validateInterval(patch.Date, patch.Start, patch.End); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resource, err := s.store.GetResource(sctx, booking.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if err := authorize(actor, resource); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	oldDate := booking.Date

	lockKey := lock.ResourceDayKey(booking.ResourceID, patch.Date)
	locked, err := s.locker.Lock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	tx, err := s.store.BeginTx(sctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, surface(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	day, err := s.store.ListResourceDay(sctx, tx, booking.ResourceID, patch.Date)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	// The booking under edit is excluded from its own comparison set.
	if ids := conflict.Check(day, patch, booking.ID); len(ids) > 0 {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", op, &response.ConflictError{BookingIDs: ids})
	}

	booking.Date = patch.Date
	booking.Start = patch.Start
	booking.End = patch.End
	booking.Kind = patch.Kind
	booking.Status = patch.Status
	booking.Category = patch.Category
	booking.Note = patch.Note

	if err := s.store.UpdateBooking(sctx, tx, booking); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, surface(err))
	}

	s.invalidateDay(ctx, booking.ResourceID, oldDate)
	if !oldDate.Equal(booking.Date) {
		s.invalidateDay(ctx, booking.ResourceID, booking.Date)
	}

	return toBookingResponse(booking), nil
}

// CancelBooking soft-deletes: the booking keeps its row for conflict
// audit but stops conflicting. Cancelling twice is a no-op, so retries
// are always safe.
func (s *Service) CancelBooking(ctx context.Context, actor models.Actor, id string) (*api.BookingResponse, error) {
	const op = "service.CancelBooking"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	booking, err := s.store.GetBooking(sctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if booking.Status == models.BookingCancelled {
		return toBookingResponse(booking), nil
	}

	resource, err := s.store.GetResource(sctx, booking.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if err := authorize(actor, resource); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.UpdateBookingStatus(sctx, id, models.BookingCancelled); err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	booking.Status = models.BookingCancelled

	s.invalidateDay(ctx, booking.ResourceID, booking.Date)

	return toBookingResponse(booking), nil
}

// DuplicateBooking stamps the source booking's resource, interval and
// category onto a new date, through the full conflict-checked path.
func (s *Service) DuplicateBooking(ctx context.Context, actor models.Actor, id string, targetDate string) (*api.BookingResponse, error) {
	const op = "service.DuplicateBooking"

	date, err := models.ParseDate(targetDate)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid target_date: %w", op, response.ErrValidation)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	source, err := s.store.GetBooking(sctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	draft := &models.Booking{
		ResourceID: source.ResourceID,
		Date:       date,
		Start:      source.Start,
		End:        source.End,
		Kind:       source.Kind,
		Status:     statusForKind(source.Kind),
		Category:   source.Category,
		Note:       source.Note,
		CreatedBy:  actor.ID,
	}

	booking, err := s.createChecked(ctx, actor, draft)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toBookingResponse(booking), nil
}

// helpers

func (s *Service) draftFromRequest(req *api.BookingRequest) (*models.Booking, error) {
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", response.ErrValidation)
	}

	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", response.ErrValidation)
	}

	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", response.ErrValidation)
	}

	kind := models.BookingKind(req.Kind)
	if req.Kind == "" {
		kind = models.KindAppointment
	}
	if kind != models.KindAppointment && kind != models.KindTimeBlock {
		return nil, fmt.Errorf("invalid kind %q: %w", req.Kind, response.ErrValidation)
	}

	return &models.Booking{
		ResourceID: req.ResourceID,
		Date:       date,
		Start:      start,
		End:        end,
		Kind:       kind,
		Status:     statusForKind(kind),
		Category:   req.Category,
		Note:       req.Note,
	}, nil
}

// statusForKind: time blocks live as blocked, appointments as active.
func statusForKind(kind models.BookingKind) models.BookingStatus {
	if kind == models.KindTimeBlock {
		return models.BookingBlocked
	}
	return models.BookingActive
}

func (s *Service) invalidateDay(ctx context.Context, resourceID string, date time.Time) {
	// Best effort: a missed invalidation only extends staleness until
	// the cache TTL expires.
	_ = s.cache.InvalidateResourceDay(ctx, resourceID, date)
}

func toBookingResponse(b *models.Booking) *api.BookingResponse {
	return &api.BookingResponse{
		ID:         b.ID,
		ResourceID: b.ResourceID,
		Date:       b.Date.Format(models.DateLayout),
		StartTime:  models.FormatClock(b.Start),
		EndTime:    models.FormatClock(b.End),
		Kind:       string(b.Kind),
		Status:     string(b.Status),
		Category:   b.Category,
		Note:       b.Note,
		TemplateID: b.TemplateID,
		CreatedBy:  b.CreatedBy,
	}
}

func toResourceResponse(r *models.Resource) *api.ResourceResponse {
	resp := &api.ResourceResponse{
		ID:       r.ID,
		Name:     r.Name,
		Kind:     string(r.Kind),
		Category: r.Category,
		Location: r.Location,
		Capacity: r.Capacity,
	}
	if r.OwnerUserID != nil {
		resp.OwnerUserID = *r.OwnerUserID
	}
	return resp
}

func truncateToDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// parseWeekdayFlexible accepts the spellings commonly found in request
// payloads: "mon", "monday", "Mon", "1", "0" and so on (0 = Sunday).
func parseWeekdayFlexible(s string) (time.Weekday, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 0 && n <= 6 {
			return time.Weekday(n), true
		}
		if n == 7 {
			return time.Sunday, true
		}
		return 0, false
	}

	switch s {
	case "sun", "sunday":
		return time.Sunday, true
	case "mon", "monday":
		return time.Monday, true
	case "tue", "tues", "tuesday":
		return time.Tuesday, true
	case "wed", "wednesday":
		return time.Wednesday, true
	case "thu", "thur", "thursday":
		return time.Thursday, true
	case "fri", "friday":
		return time.Friday, true
	case "sat", "saturday":
		return time.Saturday, true
	default:
		return 0, false
	}
}
