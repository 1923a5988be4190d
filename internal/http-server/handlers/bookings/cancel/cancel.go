package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
)

type BookingCanceller interface {
	CancelBooking(ctx context.Context, actor models.Actor, id string) (*api.BookingResponse, error)
}

type Response struct {
	response.Response
	Booking api.BookingResponse `json:"booking,omitempty"`
}

// New cancels a booking, keeping its row for conflict audit. DELETE
// routes share this path but answer 204: cancellation is the soft
// delete, there is no hard delete.
func New(log *slog.Logger, canceller BookingCanceller, noContent bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.cancel.New"

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

		actor := models.Actor{
			ID:   r.Header.Get("X-Actor-ID"),
			Role: models.Role(r.Header.Get("X-Actor-Role")),
		}

		booking, err := canceller.CancelBooking(r.Context(), actor, id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("booking not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
			return
		}

		if errors.Is(err, response.ErrForbidden) {
			log.Error("actor is not allowed")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(string(response.FORBIDDEN), "actor is not allowed to mutate this schedule"))
			return
		}

		if errors.Is(err, response.ErrTimeout) {
			log.Error("store timed out")
			w.WriteHeader(http.StatusGatewayTimeout)
			render.JSON(w, r, response.Error(string(response.TIMEOUT), "store timed out"))
			return
		}

		if err != nil {
			log.Error("Failed to cancel booking", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to cancel booking"))
			return
		}

		log.Info("Booking cancelled", slog.String("id", id))

		if noContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		render.JSON(w, r, Response{
			Booking: *booking,
		})
	}
}
