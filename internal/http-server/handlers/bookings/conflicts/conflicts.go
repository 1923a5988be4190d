package conflicts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"medsched-service/api"
	"medsched-service/internal/models"
	"medsched-service/pkg/response"
	"medsched-service/pkg/sl"
)

type ConflictLister interface {
	ResourceConflicts(ctx context.Context, resourceID string, from, to *time.Time) ([]*api.ConflictResponse, error)
}

type Response struct {
	response.Response
	Conflicts []*api.ConflictResponse `json:"conflicts"`
}

func New(log *slog.Logger, lister ConflictLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.conflicts.New"

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

		var from, to *time.Time
		if v := r.URL.Query().Get("from"); v != "" {
			d, err := models.ParseDate(v)
			if err != nil {
				log.Error("bad from date", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.VALIDATION), "from must match format 2006-01-02"))
				return
			}
			from = &d
		}
		if v := r.URL.Query().Get("to"); v != "" {
			d, err := models.ParseDate(v)
			if err != nil {
				log.Error("bad to date", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.VALIDATION), "to must match format 2006-01-02"))
				return
			}
			to = &d
		}

		conflicts, err := lister.ResourceConflicts(r.Context(), resourceID, from, to)

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
			log.Error("Failed to list conflicts", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list conflicts"))
			return
		}

		log.Info("Conflicts listed", slog.Int("count", len(conflicts)))

		render.JSON(w, r, Response{
			Conflicts: conflicts,
		})
	}
}
