package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	playgroundValidator "github.com/go-playground/validator/v10"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
	"medsched-service/pkg/validator"
)

type BookingCreator interface {
	CreateBooking(ctx context.Context, actor models.Actor, req *api.BookingRequest) (*api.BookingResponse, error)
}

type Request struct {
	api.BookingRequest
}

type Response struct {
	response.Response
	Booking api.BookingResponse `json:"booking,omitempty"`
}

func New(log *slog.Logger, creator BookingCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.create.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		if err := validator.Struct(req.BookingRequest); err != nil {
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

		actor := models.Actor{
			ID:   r.Header.Get("X-Actor-ID"),
			Role: models.Role(r.Header.Get("X-Actor-Role")),
		}

		booking, err := creator.CreateBooking(r.Context(), actor, &req.BookingRequest)

		var conflictErr *response.ConflictError
		if errors.As(err, &conflictErr) {
			log.Error("booking conflicts", slog.Any("conflicting_ids", conflictErr.BookingIDs))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.ConflictResponse("interval overlaps an existing booking", conflictErr.BookingIDs))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("booking conflicts")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "interval overlaps an existing booking"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("booking draft is invalid", sl.Err(err))
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
			log.Error("resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if errors.Is(err, response.ErrTimeout) {
			log.Error("store timed out")
			w.WriteHeader(http.StatusGatewayTimeout)
			render.JSON(w, r, response.Error(string(response.TIMEOUT), "store timed out"))
			return
		}

		if err != nil {
			log.Error("Failed to create booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create booking"))
			return
		}

		log.Info("Booking created", slog.Any("booking", booking))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Booking: *booking,
		})
	}
}
