// Package main implements the gateway service managing simulation jobs for
// the STM32 emulator fleet.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/redis/go-redis/v9"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"

	gwconfig "github.com/tinunadno/stm32-emulator/internal/gateway/config"
	"github.com/tinunadno/stm32-emulator/internal/gateway/handlers"
	gwmiddleware "github.com/tinunadno/stm32-emulator/internal/gateway/middleware"
	"github.com/tinunadno/stm32-emulator/internal/gateway/repository"
	"github.com/tinunadno/stm32-emulator/internal/gateway/service"
	"github.com/tinunadno/stm32-emulator/internal/gateway/sse"
	"github.com/tinunadno/stm32-emulator/internal/config"
)

const initTimeout = 30 * time.Second

func main() {
	ctx := app.Context()

	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	cfg, err := gwconfig.Load(configFile)
	if err != nil {
		logger := config.CreateLogger(false, false)
		logger.Fatal("Failed to load config", log.Err(err))
	}

	logger := config.CreateLogger(cfg.Logging.Debug, cfg.Logging.Quiet)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err.Error())
	}
}

func run(ctx context.Context, cfg *gwconfig.Config, logger *log.Logger) error {
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	pgRepo, err := repository.NewPostgresRepository(
		initCtx,
		cfg.Postgres.DSN,
		cfg.Postgres.MaxOpenConns,
		cfg.Postgres.MaxIdleConns,
		cfg.Postgres.ConnMaxLifetime,
	)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer pgRepo.Close()

	if err := pgRepo.RunMigrations(initCtx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("Database migrations completed")

	keyDBRepo, err := repository.NewKeyDBRepository(
		initCtx,
		cfg.KeyDB.Addr,
		cfg.KeyDB.Password,
		cfg.KeyDB.DB,
		cfg.KeyDB.PoolSize,
	)
	if err != nil {
		return fmt.Errorf("connecting to KeyDB: %w", err)
	}
	defer keyDBRepo.Close()

	keyDBClient := redis.NewClient(&redis.Options{
		Addr:     cfg.KeyDB.Addr,
		Password: cfg.KeyDB.Password,
		DB:       cfg.KeyDB.DB,
		PoolSize: cfg.KeyDB.PoolSize,
	})
	defer keyDBClient.Close()

	jobService := service.NewJobService(pgRepo, keyDBRepo)
	broker := sse.NewBroker()
	auth := gwmiddleware.NewAuth(&cfg.Auth)

	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Server.HTTPPort)
	jobsHandler := handlers.NewJobsHandler(jobService, baseURL)
	eventsHandler := handlers.NewEventsHandler(jobService, broker, keyDBRepo, logger)
	healthHandler := handlers.NewHealthHandler(keyDBClient, pgRepo)

	router := newRouter(cfg, logger, auth, jobsHandler, eventsHandler, healthHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Gateway listening", log.Int("port", cfg.Server.HTTPPort))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving HTTP: %w", err)
	}
	return nil
}

func newRouter(cfg *gwconfig.Config, logger *log.Logger, auth *gwmiddleware.Auth,
	jobs *handlers.JobsHandler, events *handlers.EventsHandler,
	health *handlers.HealthHandler) chi.Router {

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(gwmiddleware.CORS())
	r.Use(gwmiddleware.RequestLogger(logger))
	r.Use(handlers.MetricsMiddleware)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", health.Live)
		r.Get("/ready", health.Ready)
	})

	r.Handle("/metrics", handlers.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
			render.JSON(w, r, map[string]any{
				"service":   "stm32-gateway",
				"endpoints": []string{"/v1/jobs"},
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAPIKey)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", jobs.CreateJob)
				r.Get("/", jobs.ListJobs)

				r.Route("/{job_id}", func(r chi.Router) {
					r.Get("/", jobs.GetJob)
					r.Delete("/", jobs.CancelJob)
					r.Get("/gdb-info", jobs.GetGDBInfo)
					r.Get("/events", events.StreamEvents)
				})
			})
		})
	})

	return r
}
