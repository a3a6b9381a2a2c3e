package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sajilocms/scheduling-engine/internal/db"
)

// Seeds demo scheduling data: weekly availability, a few absences and a
// spread of appointments for generated doctor IDs. Doctor and patient
// profiles live in the identity service; this engine only needs their IDs.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs := make([]uuid.UUID, 0, 20)
	for i := 0; i < 20; i++ {
		doctorIDs = append(doctorIDs, uuid.New())
	}

	if err := seedSchedules(context.Background(), pool, doctorIDs); err != nil {
		log.Fatal().Err(err).Msg("seed schedules")
	}
	if err := seedAbsences(context.Background(), pool, doctorIDs); err != nil {
		log.Fatal().Err(err).Msg("seed absences")
	}
	if err := seedAppointments(context.Background(), pool, doctorIDs); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	for _, id := range doctorIDs {
		log.Info().Str("doctor_id", id.String()).Msg("seeded doctor")
	}
	log.Info().Msg("seed complete")
}

func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		// Weekdays only, morning and afternoon blocks.
		for day := 0; day < 5; day++ {
			morningStart := gofakeit.Number(8, 9) * 60
			blocks := [][2]int{
				{morningStart, 12 * 60},
				{13 * 60, 17 * 60},
			}
			for _, b := range blocks {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_windows (id, doctor_id, weekday, start_min, end_min, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, now(), now())
				`, uuid.New(), doctorID, day, b[0], b[1])
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

func seedAbsences(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	reasons := []string{"Annual leave", "Conference", "Medical training", "Personal"}

	for _, doctorID := range doctorIDs {
		// One upcoming absence per doctor, roughly half approved.
		start := time.Now().AddDate(0, 0, gofakeit.Number(3, 20)).Truncate(time.Hour)
		end := start.Add(time.Duration(gofakeit.Number(4, 48)) * time.Hour)
		approved := gofakeit.Bool()

		_, err := tx.Exec(ctx, `
			INSERT INTO absences (id, doctor_id, start_time, end_time, reason, approved, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, uuid.New(), doctorID, start, end, reasons[gofakeit.Number(0, len(reasons)-1)], approved)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		// Non-overlapping upcoming appointments on one day next week.
		day := time.Now().AddDate(0, 0, 7).Truncate(24 * time.Hour)
		slot := day.Add(9 * time.Hour)
		count := gofakeit.Number(2, 6)

		for i := 0; i < count; i++ {
			start := slot
			end := start.Add(25 * time.Minute)
			slot = end

			patientID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, doctor_id, patient_id, walkin_name, walkin_email, walkin_phone,
				                          start_time, end_time, status, reason, notes, created_by, created_at, updated_at)
				VALUES ($1, $2, $3, NULL, NULL, NULL, $4, $5, 'PENDING', $6, '', $7, now(), now())
			`, uuid.New(), doctorID, patientID, start, end, gofakeit.Sentence(5), patientID)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}
