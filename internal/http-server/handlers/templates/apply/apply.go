package apply

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	playgroundValidator "github.com/go-playground/validator/v10"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
	"medsched-service/pkg/validator"
)

type TemplateApplier interface {
	ApplyTemplate(ctx context.Context, actor models.Actor, templateID, targetDate string) (*api.BookingResponse, error)
	ExpandRecurring(ctx context.Context, actor models.Actor, templateID, from, to string) ([]*api.ApplyOutcomeResponse, error)
}

type Request struct {
	api.ApplyTemplateRequest
}

type Response struct {
	response.Response
	Booking  *api.BookingResponse        `json:"booking,omitempty"`
	Outcomes []*api.ApplyOutcomeResponse `json:"outcomes,omitempty"`
}

func New(log *slog.Logger, applier TemplateApplier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.templates.apply.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			log.Error("id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "id is required"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if err := validator.Struct(req.ApplyTemplateRequest); err != nil {
			var validateErrs playgroundValidator.ValidationErrors
			if errors.As(err, &validateErrs) {
				log.Error("Request validation failed", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.ValidationError(validateErrs))
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid request"))
			return
		}

		single := req.TargetDate != ""
		ranged := req.From != "" || req.To != ""

		if single == ranged {
			log.Error("ambiguous apply target")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "provide either target_date or from and to"))
			return
		}

		if ranged && (req.From == "" || req.To == "") {
			log.Error("incomplete range")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "from and to are both required for a range"))
			return
		}

		actor := models.Actor{
			ID:   r.Header.Get("X-Actor-ID"),
			Role: models.Role(r.Header.Get("X-Actor-Role")),
		}

		if single {
			booking, err := applier.ApplyTemplate(r.Context(), actor, id, req.TargetDate)

			var conflictErr *response.ConflictError
			if errors.As(err, &conflictErr) {
				log.Error("apply conflicts", slog.Any("conflicting_ids", conflictErr.BookingIDs))
				w.WriteHeader(http.StatusConflict)
				render.JSON(w, r, response.ConflictResponse("interval overlaps an existing booking", conflictErr.BookingIDs))
				return
			}

			if errors.Is(err, response.ErrConflict) {
				log.Error("apply conflicts")
				w.WriteHeader(http.StatusConflict)
				render.JSON(w, r, response.Error(string(response.CONFLICT), "interval overlaps an existing booking"))
				return
			}

			if errors.Is(err, response.ErrValidation) {
				log.Error("apply target is invalid", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
				return
			}

			if errors.Is(err, response.ErrForbidden) {
				log.Error("actor is not allowed")
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error(string(response.FORBIDDEN), "actor is not allowed to mutate this schedule"))
				return
			}

			if errors.Is(err, response.ErrLocked) {
				log.Error("resource is locked")
				w.WriteHeader(http.StatusLocked)
				render.JSON(w, r, response.Error(string(response.LOCKED), "resource is locked"))
				return
			}

			if errors.Is(err, response.ErrNotFound) {
				log.Error("template not found")
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "template not found"))
				return
			}

			if errors.Is(err, response.ErrTimeout) {
				log.Error("store timed out")
				w.WriteHeader(http.StatusGatewayTimeout)
				render.JSON(w, r, response.Error(string(response.TIMEOUT), "store timed out"))
				return
			}

			if err != nil {
				log.Error("Failed to apply template", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to apply template"))
				return
			}

			log.Info("Template applied", slog.String("booking_id", booking.ID))

			w.WriteHeader(http.StatusCreated)
			render.JSON(w, r, Response{
				Booking: booking,
			})
			return
		}

		outcomes, err := applier.ExpandRecurring(r.Context(), actor, id, req.From, req.To)

		if errors.Is(err, response.ErrValidation) {
			log.Error("apply range is invalid", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("template not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "template not found"))
			return
		}

		if errors.Is(err, response.ErrTimeout) {
			log.Error("store timed out")
			w.WriteHeader(http.StatusGatewayTimeout)
			render.JSON(w, r, response.Error(string(response.TIMEOUT), "store timed out"))
			return
		}

		if err != nil {
			log.Error("Failed to expand template", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to expand template"))
			return
		}

		created := 0
		for _, o := range outcomes {
			if o.Status == "created" {
				created++
			}
		}

		log.Info("Template expanded",
			slog.Int("dates", len(outcomes)),
			slog.Int("created", created),
		)

		render.JSON(w, r, Response{
			Outcomes: outcomes,
		})
	}
}
