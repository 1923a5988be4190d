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

type ResourceLister interface {
	ListResources(ctx context.Context, kind *string) ([]*api.ResourceResponse, error)
}

type Response struct {
	response.Response
	Resources []*api.ResourceResponse `json:"resources"`
}

func New(log *slog.Logger, lister ResourceLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resources.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var kind *string
		if k := r.URL.Query().Get("kind"); k != "" {
			kind = &k
		}

		resources, err := lister.ListResources(r.Context(), kind)

		if errors.Is(err, response.ErrValidation) {
			log.Error("bad kind filter", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), err.Error()))
			return
		}

		if errors.Is(err, response.ErrTimeout) {
			log.Error("store timed out")
			w.WriteHeader(http.StatusGatewayTimeout)
			render.JSON(w, r, response.Error(string(response.TIMEOUT), "store timed out"))
			return
		}

		if err != nil {
			log.Error("Failed to list resources", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list resources"))
			return
		}

		log.Info("Resources listed", slog.Int("count", len(resources)))

		render.JSON(w, r, Response{
			Resources: resources,
		})
	}
}
