package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthconnect/healthconnect-server/internal/config"
	"github.com/healthconnect/healthconnect-server/internal/db"
	"github.com/healthconnect/healthconnect-server/internal/schedule"
)

// Seeds a dev database with fake barangay residents, staff, and a spread of
// upcoming appointments. Every generated account shares the same password so
// any of them can be used for manual testing.
const devPassword = "password123"

func main() {
	var (
		workers      = flag.Int("workers", 3, "number of health workers")
		patients     = flag.Int("patients", 40, "number of patients")
		appointments = flag.Int("appointments", 120, "number of appointments")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load config")
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	s := seeder{pool: pool, log: log, cfg: cfg}

	if err := s.run(ctx, *workers, *patients, *appointments); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Msg("seed complete")
}

type seeder struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
	cfg  config.Config
}

func (s *seeder) run(ctx context.Context, workers, patients, appointments int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	passwordHash := string(hash)

	if err := s.seedSettings(ctx); err != nil {
		return err
	}
	if err := s.seedAdmin(ctx, passwordHash); err != nil {
		return err
	}

	workerIDs, err := s.seedWorkers(ctx, workers, passwordHash)
	if err != nil {
		return err
	}
	patientIDs, err := s.seedPatients(ctx, patients, passwordHash)
	if err != nil {
		return err
	}
	if err := s.seedAppointments(ctx, workerIDs, patientIDs, appointments); err != nil {
		return err
	}
	return s.seedCalendarExceptions(ctx)
}

func (s *seeder) seedSettings(ctx context.Context) error {
	pairs := map[string]string{
		"workday_start":          s.cfg.WorkdayStart,
		"workday_end":            s.cfg.WorkdayEnd,
		"slot_interval_minutes":  fmt.Sprint(s.cfg.SlotInterval),
		"default_daily_capacity": fmt.Sprint(s.cfg.DefaultCapacity),
	}
	for key, value := range pairs {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}
	return nil
}

func (s *seeder) seedAdmin(ctx context.Context, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (role, full_name, email, phone, password_hash, is_approved)
		VALUES ('admin', 'Health Center Admin', 'admin@healthconnect.local', $1, $2, TRUE)
		ON CONFLICT (email) DO NOTHING
	`, gofakeit.Phone(), passwordHash)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func (s *seeder) seedWorkers(ctx context.Context, n int, passwordHash string) ([]int64, error) {
	positions := []string{"Midwife", "Nurse", "Barangay Health Worker", "Physician"}

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		var userID int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO users (role, full_name, email, phone, password_hash, is_approved)
			VALUES ('health_worker', $1, $2, $3, $4, TRUE)
			RETURNING id
		`, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), passwordHash).Scan(&userID)
		if err != nil {
			return nil, fmt.Errorf("seed worker user: %w", err)
		}

		var workerID int64
		err = s.pool.QueryRow(ctx, `
			INSERT INTO health_workers (user_id, position) VALUES ($1, $2)
			RETURNING id
		`, userID, gofakeit.RandomString(positions)).Scan(&workerID)
		if err != nil {
			return nil, fmt.Errorf("seed worker: %w", err)
		}
		ids = append(ids, workerID)
	}
	s.log.Info().Int("count", n).Msg("seeded health workers")
	return ids, nil
}

func (s *seeder) seedPatients(ctx context.Context, n int, passwordHash string) ([]int64, error) {
	bloodTypes := []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		// Roughly one in five stays pending so the approval queue has content.
		approved := gofakeit.Number(0, 4) > 0

		var userID int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO users (role, full_name, email, phone, password_hash, is_approved)
			VALUES ('patient', $1, $2, $3, $4, $5)
			RETURNING id
		`, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), passwordHash, approved).Scan(&userID)
		if err != nil {
			return nil, fmt.Errorf("seed patient user: %w", err)
		}

		var approvedAt *time.Time
		if approved {
			t := gofakeit.DateRange(time.Now().AddDate(0, -6, 0), time.Now())
			approvedAt = &t
		}

		var patientID int64
		err = s.pool.QueryRow(ctx, `
			INSERT INTO patients (user_id, blood_type, emergency_contact, approved_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, userID, gofakeit.RandomString(bloodTypes), gofakeit.Phone(), approvedAt).Scan(&patientID)
		if err != nil {
			return nil, fmt.Errorf("seed patient: %w", err)
		}
		if approved {
			ids = append(ids, patientID)
		}
	}
	s.log.Info().Int("count", n).Msg("seeded patients")
	return ids, nil
}

func (s *seeder) seedAppointments(ctx context.Context, workerIDs, patientIDs []int64, n int) error {
	if len(workerIDs) == 0 || len(patientIDs) == 0 {
		return nil
	}

	settings := schedule.Settings{
		WorkdayStart: schedule.MustTimeOfDay(s.cfg.WorkdayStart),
		WorkdayEnd:   schedule.MustTimeOfDay(s.cfg.WorkdayEnd),
		SlotInterval: s.cfg.SlotInterval,
	}
	slots := settings.SlotTimes()
	reasons := []string{"prenatal checkup", "blood pressure monitoring", "follow-up consultation", "immunization", "general checkup"}

	type slotKey struct {
		worker int64
		date   string
		time   string
	}
	used := make(map[slotKey]struct{}, n)

	today := time.Now().Truncate(24 * time.Hour)
	inserted := 0
	for attempts := 0; inserted < n && attempts < n*10; attempts++ {
		date := today.AddDate(0, 0, gofakeit.Number(1, 30))
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		worker := workerIDs[gofakeit.Number(0, len(workerIDs)-1)]
		slot := slots[gofakeit.Number(0, len(slots)-1)]

		key := slotKey{worker: worker, date: date.Format("2006-01-02"), time: slot.String()}
		if _, ok := used[key]; ok {
			continue
		}
		used[key] = struct{}{}

		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		_, err := s.pool.Exec(ctx, `
			INSERT INTO appointments (patient_id, health_worker_id, appointment_date, appointment_time, status, reason)
			VALUES ($1, $2, $3, $4::time, 'scheduled', $5)
		`, patientID, worker, date, slot.String(), gofakeit.RandomString(reasons))
		if err != nil {
			return fmt.Errorf("seed appointment: %w", err)
		}
		inserted++
	}
	s.log.Info().Int("count", inserted).Msg("seeded appointments")
	return nil
}

func (s *seeder) seedCalendarExceptions(ctx context.Context) error {
	blocked := time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	_, err := s.pool.Exec(ctx, `
		INSERT INTO unavailable_dates (blocked_date, reason)
		VALUES ($1, 'barangay fiesta')
		ON CONFLICT (blocked_date) DO NOTHING
	`, blocked)
	if err != nil {
		return fmt.Errorf("seed blocked date: %w", err)
	}

	reduced := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	_, err = s.pool.Exec(ctx, `
		INSERT INTO slot_overrides (override_date, capacity)
		VALUES ($1, 5)
		ON CONFLICT (override_date) DO NOTHING
	`, reduced)
	if err != nil {
		return fmt.Errorf("seed slot override: %w", err)
	}
	return nil
}
