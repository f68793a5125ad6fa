package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthconnect/healthconnect-server/internal/api"
	"github.com/healthconnect/healthconnect-server/internal/appointment"
	"github.com/healthconnect/healthconnect-server/internal/config"
	"github.com/healthconnect/healthconnect-server/internal/db"
	"github.com/healthconnect/healthconnect-server/internal/notify"
	"github.com/healthconnect/healthconnect-server/internal/patient"
	"github.com/healthconnect/healthconnect-server/internal/record"
	redisclient "github.com/healthconnect/healthconnect-server/internal/redis"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	defaults, err := scheduleDefaults(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid schedule defaults")
	}

	dispatcher := notify.NewDispatcher(pool, notify.LogSender{Log: log}, log)

	patientSvc := patient.NewService(patient.NewPgRepository(pool, log), dispatcher, log)
	appointmentSvc := appointment.NewService(
		appointment.NewPgRepository(pool),
		redisclient.NewRedisSlotLocker(redisClient, cfg.LockTTL),
		redisclient.NewSnapshotCache(redisClient, cfg.AvailabilityTTL),
		dispatcher,
		defaults,
		log,
	)
	recordSvc := record.NewService(record.NewPgRepository(pool), log)

	router := api.NewRouter(api.RouterConfig{
		Patients:     patientSvc,
		Appointments: appointmentSvc,
		Records:      recordSvc,
		PgPool:       pool,
		Redis:        redisClient,
		Log:          log,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func scheduleDefaults(cfg config.Config) (schedule.Settings, error) {
	start, err := schedule.ParseTimeOfDay(cfg.WorkdayStart)
	if err != nil {
		return schedule.Settings{}, err
	}
	end, err := schedule.ParseTimeOfDay(cfg.WorkdayEnd)
	if err != nil {
		return schedule.Settings{}, err
	}
	return schedule.Settings{
		WorkdayStart:    start,
		WorkdayEnd:      end,
		SlotInterval:    cfg.SlotInterval,
		DefaultCapacity: cfg.DefaultCapacity,
	}, nil
}
