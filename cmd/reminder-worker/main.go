package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthconnect/healthconnect-server/internal/appointment"
	"github.com/healthconnect/healthconnect-server/internal/config"
	"github.com/healthconnect/healthconnect-server/internal/db"
	"github.com/healthconnect/healthconnect-server/internal/notify"
	redisclient "github.com/healthconnect/healthconnect-server/internal/redis"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

// The reminder worker texts patients a day before their appointment. It runs
// once at startup and then on a fixed interval; each run only picks up
// appointments that have no reminder row yet, so overlapping deployments do
// not double-send.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "reminder_worker").Logger()

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

	defaults := schedule.Settings{
		WorkdayStart:    schedule.MustTimeOfDay(cfg.WorkdayStart),
		WorkdayEnd:      schedule.MustTimeOfDay(cfg.WorkdayEnd),
		SlotInterval:    cfg.SlotInterval,
		DefaultCapacity: cfg.DefaultCapacity,
	}

	dispatcher := notify.NewDispatcher(pool, notify.LogSender{Log: log}, log)
	svc := appointment.NewService(
		appointment.NewPgRepository(pool),
		redisclient.NewRedisSlotLocker(redisClient, cfg.LockTTL),
		redisclient.NewSnapshotCache(redisClient, cfg.AvailabilityTTL),
		dispatcher,
		defaults,
		log,
	)

	log.Info().Dur("interval", cfg.WorkerInterval).Msg("reminder worker started")

	runOnce(ctx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reminder worker stopped")
			return
		case <-ticker.C:
			runOnce(ctx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	sent, err := svc.SendReminders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reminder run failed")
		return
	}
	if sent > 0 {
		log.Info().Int("sent", sent).Msg("reminders sent")
	}
}
