package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/internal/schedule/recurrence"
	"medsched-service/pkg/response"
)

func (s *Service) CreateTemplate(ctx context.Context, req *api.TemplateRequest) (*api.TemplateResponse, error) {
	const op = "service.CreateTemplate"

	tpl, err := s.templateFromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tpl.ID = uuid.NewString()

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.store.GetResource(sctx, tpl.ResourceID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if _, err := s.store.CreateTemplate(sctx, tpl); err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	return toTemplateResponse(tpl), nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*api.TemplateResponse, error) {
	const op = "service.GetTemplate"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	tpl, err := s.store.GetTemplate(sctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	return toTemplateResponse(tpl), nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id string, req *api.TemplateRequest) (*api.TemplateResponse, error) {
	const op = "service.UpdateTemplate"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.store.GetTemplate(sctx, id); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	tpl, err := s.templateFromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tpl.ID = id

	if err := s.store.UpdateTemplate(sctx, tpl); err != nil {
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	return toTemplateResponse(tpl), nil
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	const op = "service.DeleteTemplate"

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.store.DeleteTemplate(sctx, id); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, surface(err))
	}

	return nil
}

// ApplyTemplate stamps one booking from the template onto targetDate.
// The date must fall on one of the template's weekdays; creation then
// runs the normal conflict-checked path.
func (s *Service) ApplyTemplate(ctx context.Context, actor models.Actor, templateID, targetDate string) (*api.BookingResponse, error) {
	const op = "service.ApplyTemplate"

	date, err := models.ParseDate(targetDate)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid target_date: %w", op, response.ErrValidation)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	tpl, err := s.store.GetTemplate(sctx, templateID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if !tpl.Active {
		return nil, fmt.Errorf("%s: template is disabled: %w", op, response.ErrValidation)
	}

	if !tpl.Matches(date) {
		return nil, fmt.Errorf("%s: %s does not match the template weekdays: %w", op, targetDate, response.ErrValidation)
	}

	draft := recurrence.Stamp(tpl, date)
	draft.CreatedBy = actor.ID

	booking, err := s.createChecked(ctx, actor, draft)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toBookingResponse(booking), nil
}

// ExpandRecurring stamps the template onto every matching date in
// [from, to]. Dates are independent: a conflict or failure on one date
// is recorded in its outcome and the batch carries on; earlier
// creations are never rolled back.
func (s *Service) ExpandRecurring(ctx context.Context, actor models.Actor, templateID, fromStr, toStr string) ([]*api.ApplyOutcomeResponse, error) {
	const op = "service.ExpandRecurring"

	from, err := models.ParseDate(fromStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid from: %w", op, response.ErrValidation)
	}
	to, err := models.ParseDate(toStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid to: %w", op, response.ErrValidation)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%s: to is before from: %w", op, response.ErrValidation)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	tpl, err := s.store.GetTemplate(sctx, templateID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, surface(err))
	}

	if !tpl.Active {
		return nil, fmt.Errorf("%s: template is disabled: %w", op, response.ErrValidation)
	}

	dates := recurrence.Dates(tpl, from, to)

	outcomes := make([]*api.ApplyOutcomeResponse, 0, len(dates))
	for _, date := range dates {
		outcome := &api.ApplyOutcomeResponse{Date: date.Format(models.DateLayout)}

		draft := recurrence.Stamp(tpl, date)
		draft.CreatedBy = actor.ID

		booking, err := s.createChecked(ctx, actor, draft)
		switch {
		case err == nil:
			outcome.Status = "created"
			outcome.Booking = toBookingResponse(booking)
		case errors.Is(err, response.ErrConflict):
			outcome.Status = "conflict"
			outcome.Message = "interval overlaps an existing booking"
			var conflictErr *response.ConflictError
			if errors.As(err, &conflictErr) {
				outcome.ConflictIDs = conflictErr.BookingIDs
			}
		case errors.Is(err, response.ErrValidation):
			outcome.Status = "invalid"
			outcome.Message = err.Error()
		default:
			outcome.Status = "failed"
			outcome.Message = err.Error()
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (s *Service) templateFromRequest(req *api.TemplateRequest) (*models.Template, error) {
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", response.ErrValidation)
	}
	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", response.ErrValidation)
	}
	if start >= end {
		return nil, fmt.Errorf("start must be before end: %w", response.ErrValidation)
	}

	startDate, err := models.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date: %w", response.ErrValidation)
	}
	endDate, err := models.ParseDate(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date: %w", response.ErrValidation)
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end_date is before start_date: %w", response.ErrValidation)
	}

	var weekdays []time.Weekday
	for _, d := range req.Weekdays {
		wd, ok := parseWeekdayFlexible(d)
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q: %w", d, response.ErrValidation)
		}
		weekdays = append(weekdays, wd)
	}

	return &models.Template{
		ResourceID: req.ResourceID,
		Weekdays:   weekdays,
		Start:      start,
		End:        end,
		Category:   req.Category,
		StartDate:  startDate,
		EndDate:    endDate,
		Active:     req.Active,
	}, nil
}

func toTemplateResponse(tpl *models.Template) *api.TemplateResponse {
	days := make([]string, 0, len(tpl.Weekdays))
	for _, d := range tpl.Weekdays {
		days = append(days, strings.ToLower(d.String()[:3]))
	}

	return &api.TemplateResponse{
		ID:         tpl.ID,
		ResourceID: tpl.ResourceID,
		Weekdays:   days,
		StartTime:  models.FormatClock(tpl.Start),
		EndTime:    models.FormatClock(tpl.End),
		Category:   tpl.Category,
		StartDate:  tpl.StartDate.Format(models.DateLayout),
		EndDate:    tpl.EndDate.Format(models.DateLayout),
		Active:     tpl.Active,
	}
}
