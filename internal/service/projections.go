package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/internal/schedule/availability"
	"medsched-service/internal/schedule/calendar"
	"medsched-service/internal/schedule/conflict"
	"medsched-service/pkg/response"
)

// ResourceConflicts reports every overlapping pair among one resource's
// live bookings, recomputed from the current snapshot. Conflicts vanish
// as soon as either side is edited apart or cancelled.
func (s *Service) ResourceConflicts(ctx context.Context, resourceID string, from, to *time.Time) ([]*api.ConflictResponse, error) {
	const op = "service.ResourceConflicts"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.store.GetResource(sctx, resourceID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	bookings, err := s.store.ListBookings(sctx, []string{resourceID}, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	conflicts := conflict.Pairs(bookings)

	result := make([]*api.ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		result = append(result, &api.ConflictResponse{
			ResourceID: c.ResourceID,
			Date:       c.Date.Format(models.DateLayout),
			BookingA:   c.BookingA,
			BookingB:   c.BookingB,
		})
	}

	return result, nil
}

// Projection renders the calendar for a set of resources around an
// anchor date. Served from the cache when a mutation has not touched
// the window since the last read.
func (s *Service) Projection(ctx context.Context, resourceIDs []string, anchorStr, viewStr string) (*api.CalendarResponse, error) {
	const op = "service.Projection"

	anchor, err := models.ParseDate(anchorStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid anchor: %w", op, response.ErrValidation)
	}

	view, err := calendar.ParseView(viewStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, err, response.ErrValidation)
	}

	if len(resourceIDs) == 0 {
		return nil, fmt.Errorf("%s: at least one resource_id is required: %w", op, response.ErrValidation)
	}

	sorted := make([]string, len(resourceIDs))
	copy(sorted, resourceIDs)
	sort.Strings(sorted)
	cacheKey := fmt.Sprintf("cal:%s:%s:%s", strings.Join(sorted, ","), view, anchorStr)

	var cached api.CalendarResponse
	if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
		return &cached, nil
	}

	from, to, err := calendar.Range(anchor, view)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	names := make(map[string]string, len(sorted))
	for _, id := range sorted {
		res, err := s.store.GetResource(sctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, surface(err))
		}
		names[id] = res.Name
	}

	bookings, err := s.store.ListBookings(sctx, sorted, &from, &to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	live := bookings[:0]
	for _, b := range bookings {
		if b.Live() {
			live = append(live, b)
		}
	}

	proj, err := calendar.Project(anchor, view, live, names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Conflicts are flagged per resource: bookings of different
	// resources never conflict with each other.
	conflicted := make(map[string]struct{})
	for _, c := range conflict.Pairs(live) {
		conflicted[c.BookingA] = struct{}{}
		conflicted[c.BookingB] = struct{}{}
	}

	resp := &api.CalendarResponse{
		View:       string(proj.View),
		Anchor:     proj.Anchor.Format(models.DateLayout),
		RangeStart: proj.RangeStart.Format(models.DateLayout),
		RangeEnd:   proj.RangeEnd.Format(models.DateLayout),
	}

	for _, day := range proj.Days {
		d := api.CalendarDayResponse{
			Date:     day.Date.Format(models.DateLayout),
			Bookings: make([]api.BookingResponse, 0, len(day.Bookings)),
		}
		for _, b := range day.Bookings {
			d.Bookings = append(d.Bookings, *toBookingResponse(b))
			if _, ok := conflicted[b.ID]; ok {
				d.ConflictIDs = append(d.ConflictIDs, b.ID)
			}
		}
		resp.Days = append(resp.Days, d)
	}

	_ = s.cache.SetJSON(ctx, cacheKey, resp, s.cacheTTL)

	return resp, nil
}

// FreeSlots subtracts a resource's live bookings and time blocks from
// the operating window and returns the gaps at least slotDuration
// minutes long. Same half-open semantics as the conflict detector:
// a booking ending 09:30 leaves 09:30 free.
func (s *Service) FreeSlots(ctx context.Context, resourceID, dateStr string, slotDuration int) ([]*api.IntervalResponse, error) {
	const op = "service.FreeSlots"

	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid date: %w", op, response.ErrValidation)
	}

	if slotDuration <= 0 {
		return nil, fmt.Errorf("%s: duration must be positive: %w", op, response.ErrValidation)
	}

	cacheKey := fmt.Sprintf("avail:%s:%s:%d", resourceID, dateStr, slotDuration)
	var cached []*api.IntervalResponse
	if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
		return cached, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.store.GetResource(sctx, resourceID); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	day, err := s.store.ListResourceDay(sctx, nil, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	var busy []models.Interval
	for _, b := range day {
		if !b.Live() {
			continue
		}
		busy = append(busy, models.Interval{Start: b.Start, End: b.End})
	}

	window := models.Interval{Start: s.dayOpen, End: s.dayClose}
	free := availability.FreeSlots(window, busy, slotDuration)

	result := make([]*api.IntervalResponse, 0, len(free))
	for _, iv := range free {
		result = append(result, &api.IntervalResponse{
			StartTime: models.FormatClock(iv.Start),
			EndTime:   models.FormatClock(iv.End),
		})
	}

	_ = s.cache.SetJSON(ctx, cacheKey, result, s.cacheTTL)

	return result, nil
}
