package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dashcam-service/internal/config"
	"dashcam-service/internal/db"
	"dashcam-service/internal/domain/incident"
	httpapi "dashcam-service/internal/http"
	"dashcam-service/internal/logger"
	"dashcam-service/internal/metrics"
	"dashcam-service/internal/pipeline"
	"dashcam-service/internal/repository"
	"dashcam-service/internal/service"
	"dashcam-service/internal/worker"
)

const shutdownTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	processID := flag.String("process", "", "Process a single incident and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *processID != "" {
		err = processOnce(ctx, cfg, *processID, log)
	} else {
		err = serve(ctx, cfg, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("dashcam service stopped with error")
		os.Exit(1)
	}
}

func processOnce(ctx context.Context, cfg *config.Config, incidentID string, log zerolog.Logger) error {
	if cfg.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	gdb, err := db.Connect(cfg.DB, log)
	if err != nil {
		return err
	}
	repo := repository.NewIncidentRepository(gdb)

	report := pipeline.New(cfg.Pipeline, repo, nil, log).Run(ctx, incidentID)
	log.Info().
		Str("incident_id", incidentID).
		Str("status", string(report.Status)).
		Int("frames", report.Frames).
		Int("vehicles", report.Vehicles).
		Int("plates", report.Plates).
		Int("skipped", len(report.Skipped)).
		Msg("single run finished")
	if report.Status != incident.StatusCompleted {
		return fmt.Errorf("incident %s not completed: %v", incidentID, report.Err)
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	gdb, err := db.Connect(cfg.DB, log)
	if err != nil {
		return err
	}
	repo := repository.NewIncidentRepository(gdb)
	m := metrics.New()

	dispatcher := worker.New(cfg.Worker, func() worker.Runner {
		return pipeline.New(cfg.Pipeline, repo, m.Pipeline, log)
	}, log)
	m.RegisterQueueDepth(func() float64 { return float64(dispatcher.Len()) })
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	go worker.NewPoller(repo, dispatcher, cfg.Worker, log).Run(ctx)

	incidentService := service.NewIncidentService(repo, dispatcher, log)
	handler := httpapi.NewHandler(incidentService, log)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(cfg, handler, m.Handler(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return runServer(ctx, srv, dispatcher, shutdownTimeout, log)
}

// drainer is background work that must finish before the process exits.
type drainer interface {
	Stop(ctx context.Context) error
}

// runServer serves until ctx is done or the listener fails, then shuts the
// server down and drains work. A listener failure is returned once draining
// is over.
func runServer(ctx context.Context, srv *http.Server, work drainer, timeout time.Duration, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case listenErr = <-errCh:
		if listenErr != nil {
			log.Error().Err(listenErr).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	stopErr := work.Stop(shutdownCtx)
	if stopErr != nil {
		stopErr = fmt.Errorf("stop dispatcher: %w", stopErr)
	}
	if listenErr != nil {
		listenErr = fmt.Errorf("http server: %w", listenErr)
	}
	if err := errors.Join(listenErr, stopErr); err != nil {
		return err
	}
	log.Info().Msg("dashcam service stopped")
	return nil
}
