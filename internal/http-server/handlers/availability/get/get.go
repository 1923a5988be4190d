package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"medsched-service/api"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
)

type SlotFinder interface {
	FreeSlots(ctx context.Context, resourceID, date string, slotDuration int) ([]*api.IntervalResponse, error)
}

type Response struct {
	response.Response
	Slots []*api.IntervalResponse `json:"slots"`
}

func New(log *slog.Logger, finder SlotFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		resourceID := r.URL.Query().Get("resource_id")
		if resourceID == "" {
			log.Error("resource_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "resource_id is required"))
			return
		}

		date := r.URL.Query().Get("date")

		duration := 30
		if v := r.URL.Query().Get("duration"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				log.Error("bad duration", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.VALIDATION), "duration must be an integer number of minutes"))
				return
			}
			duration = parsed
		}

		slots, err := finder.FreeSlots(r.Context(), resourceID, date, duration)

		if errors.Is(err, response.ErrValidation) {
			log.Error("bad availability query", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
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
			log.Error("Failed to compute free slots", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to compute free slots"))
			return
		}

		log.Info("Free slots computed", slog.Int("count", len(slots)))

		render.JSON(w, r, Response{
			Slots: slots,
		})
	}
}
