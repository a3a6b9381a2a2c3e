package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sajilocms/scheduling-engine/internal/billing"
	"github.com/sajilocms/scheduling-engine/internal/config"
	"github.com/sajilocms/scheduling-engine/internal/redlock"
	"github.com/sajilocms/scheduling-engine/internal/schedule"
)

// Races concurrent CreateBooking calls for the same doctor and slot
// against an in-process engine, and reports how the contention resolved.
// Exactly one booking must win; everyone else must see a conflict or a
// retryable busy error.
func main() {
	workers := flag.Int("workers", 50, "concurrent booking attempts")
	rounds := flag.Int("rounds", 20, "number of contested slots")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "simulate").Logger()

	cfg := config.Config{
		SlotDuration:       25 * time.Minute,
		CancellationWindow: 2 * time.Hour,
		Location:           time.UTC,
	}

	repo := schedule.NewMemoryRepository()
	svc := schedule.NewService(repo, redlock.NewLocalDoctorLocker(), billing.Noop{}, cfg, log, nil)

	doctorID := uuid.New()
	actor := schedule.Actor{ID: uuid.New(), Role: schedule.RolePatient}

	var success, conflict, busy, other int64
	start := time.Now()

	for round := 0; round < *rounds; round++ {
		slotStart := time.Now().UTC().Add(time.Duration(24+round) * time.Hour).Truncate(time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < *workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				patientID := uuid.New()
				_, err := svc.Book(context.Background(), schedule.BookingRequest{
					DoctorID:  doctorID,
					Start:     slotStart,
					PatientID: &patientID,
					Reason:    "simulated booking",
				}, actor)

				var conflictErr *schedule.ConflictError
				switch {
				case err == nil:
					atomic.AddInt64(&success, 1)
				case errors.As(err, &conflictErr):
					atomic.AddInt64(&conflict, 1)
				case errors.Is(err, schedule.ErrBusy):
					atomic.AddInt64(&busy, 1)
				default:
					atomic.AddInt64(&other, 1)
				}
			}()
		}
		wg.Wait()
	}

	log.Info().
		Int("rounds", *rounds).
		Int("workers", *workers).
		Int64("success", success).
		Int64("conflict", conflict).
		Int64("busy", busy).
		Int64("other", other).
		Dur("took", time.Since(start)).
		Msg("simulation complete")

	if success != int64(*rounds) {
		log.Fatal().
			Int64("winners", success).
			Int("expected", *rounds).
			Msg("at-most-one-winner violated")
	}
	log.Info().Msg("exactly one winner per contested slot")
}
