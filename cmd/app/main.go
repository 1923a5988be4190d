package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"medsched-service/internal/cache"
	"medsched-service/internal/config"
	availabilityGet "medsched-service/internal/http-server/handlers/availability/get"
	bookingCancel "medsched-service/internal/http-server/handlers/bookings/cancel"
	bookingConflicts "medsched-service/internal/http-server/handlers/bookings/conflicts"
	bookingCreate "medsched-service/internal/http-server/handlers/bookings/create"
	bookingDuplicate "medsched-service/internal/http-server/handlers/bookings/duplicate"
	bookingGet "medsched-service/internal/http-server/handlers/bookings/get"
	bookingUpdate "medsched-service/internal/http-server/handlers/bookings/update"
	calendarGet "medsched-service/internal/http-server/handlers/calendar/get"
	resourceGet "medsched-service/internal/http-server/handlers/resources/get"
	templateApply "medsched-service/internal/http-server/handlers/templates/apply"
	templateCreate "medsched-service/internal/http-server/handlers/templates/create"
	templateDelete "medsched-service/internal/http-server/handlers/templates/delete"
	templateGet "medsched-service/internal/http-server/handlers/templates/get"
	templateUpdate "medsched-service/internal/http-server/handlers/templates/update"
	"medsched-service/internal/lock"
	"medsched-service/internal/models"
	svc "medsched-service/internal/service"
	"medsched-service/internal/storage/postgres"
	"medsched-service/pkg/handlers/slogpretty"
	"medsched-service/pkg/middleware/mwlogger"
	"medsched-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-ID, X-Actor-Role")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	dayOpen, err := models.ParseClock(cfg.Scheduling.DayOpen)
	if err != nil {
		log.Error("Bad day_open in config", sl.Err(err))
		os.Exit(1)
	}

	dayClose, err := models.ParseClock(cfg.Scheduling.DayClose)
	if err != nil {
		log.Error("Bad day_close in config", sl.Err(err))
		os.Exit(1)
	}

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	readCache, err := cache.New(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis cache", sl.Err(err))
		os.Exit(1)
	}

	service := svc.NewService(storage, locker, readCache, svc.Options{
		DayOpen:      dayOpen,
		DayClose:     dayClose,
		HorizonDays:  cfg.Scheduling.HorizonDays,
		LockTTL:      cfg.Scheduling.LockTTL,
		StoreTimeout: cfg.Scheduling.StoreTimeout,
		CacheTTL:     cfg.Scheduling.CacheTTL,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Resources
	router.Get("/resources", resourceGet.New(log, service))

	// Bookings
	router.Post("/bookings", bookingCreate.New(log, service))
	router.Get("/bookings", bookingGet.New(log, service))
	router.Get("/bookings/conflicts", bookingConflicts.New(log, service))
	router.Get("/bookings/{id}", bookingGet.New(log, service))
	router.Put("/bookings/{id}", bookingUpdate.New(log, service))
	router.Put("/bookings/{id}/cancel", bookingCancel.New(log, service, false))
	router.Delete("/bookings/{id}", bookingCancel.New(log, service, true))
	router.Post("/bookings/{id}/duplicate", bookingDuplicate.New(log, service))

	// Templates
	router.Post("/templates", templateCreate.New(log, service))
	router.Get("/templates/{id}", templateGet.New(log, service))
	router.Put("/templates/{id}", templateUpdate.New(log, service))
	router.Delete("/templates/{id}", templateDelete.New(log, service))
	router.Post("/templates/{id}/apply", templateApply.New(log, service))

	// Projections
	router.Get("/calendar", calendarGet.New(log, service))
	router.Get("/availability", availabilityGet.New(log, service))

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if err := storage.Close(); err != nil {
		log.Error("Failed to close storage", sl.Err(err))
	} else {
		log.Info("Storage closed")
	}

	if err := locker.Close(); err != nil {
		log.Error("Failed to close locker", sl.Err(err))
	} else {
		log.Info("Locker closed")
	}

	if err := readCache.Close(); err != nil {
		log.Error("Failed to close cache", sl.Err(err))
	} else {
		log.Info("Cache closed")
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
