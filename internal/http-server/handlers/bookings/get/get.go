package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
)

type BookingGetter interface {
	GetBooking(ctx context.Context, id string) (*api.BookingResponse, error)
	ListBookings(ctx context.Context, resourceID *string, from, to *time.Time) ([]*api.BookingResponse, error)
}

type Response struct {
	response.Response
	Bookings []api.BookingResponse `json:"bookings,omitempty"`
	Booking  *api.BookingResponse  `json:"booking,omitempty"`
}

func New(log *slog.Logger, getter BookingGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")

		if id != "" {
			booking, err := getter.GetBooking(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("booking not found")
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "booking not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get booking", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get booking"))
				return
			}

			log.Info("Booking retrieved", slog.Any("booking", booking))
			render.JSON(w, r, Response{Booking: booking})
			return
		}

		resourceID := r.URL.Query().Get("resource_id")
		fromStr := r.URL.Query().Get("from")
		toStr := r.URL.Query().Get("to")

		var resourceIDPtr *string
		if resourceID != "" {
			resourceIDPtr = &resourceID
		}

		var from, to *time.Time
		if fromStr != "" {
			if t, err := models.ParseDate(fromStr); err == nil {
				from = &t
			}
		}
		if toStr != "" {
			if t, err := models.ParseDate(toStr); err == nil {
				to = &t
			}
		}

		bookings, err := getter.ListBookings(r.Context(), resourceIDPtr, from, to)

		if err != nil {
			log.Error("Failed to list bookings", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list bookings"))
			return
		}

		log.Info("Bookings retrieved", slog.Int("count", len(bookings)))
		bookingsResponse := make([]api.BookingResponse, len(bookings))
		for i, b := range bookings {
			bookingsResponse[i] = *b
		}
		render.JSON(w, r, Response{
			Bookings: bookingsResponse,
		})
	}
}
