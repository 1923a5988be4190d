package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"medsched-service/api"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
)

type CalendarProjector interface {
	Projection(ctx context.Context, resourceIDs []string, anchor, view string) (*api.CalendarResponse, error)
}

type Response struct {
	response.Response
	Calendar *api.CalendarResponse `json:"calendar,omitempty"`
}

func New(log *slog.Logger, projector CalendarProjector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.calendar.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		resourceIDs := r.URL.Query()["resource_id"]
		anchor := r.URL.Query().Get("anchor")
		view := r.URL.Query().Get("view")

		calendar, err := projector.Projection(r.Context(), resourceIDs, anchor, view)

		if errors.Is(err, response.ErrValidation) {
			log.Error("bad calendar query", sl.Err(err))
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
			log.Error("Failed to project calendar", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to project calendar"))
			return
		}

		log.Info("Calendar projected",
			slog.String("view", calendar.View),
			slog.Int("days", len(calendar.Days)),
		)

		render.JSON(w, r, Response{
			Calendar: calendar,
		})
	}
}
