package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajilocms/scheduling-engine/internal/billing"
)

func bookAt(t *testing.T, svc *Service, doctorID uuid.UUID, start time.Time) *Appointment {
	t.Helper()
	result, err := svc.Book(context.Background(), BookingRequest{
		DoctorID: doctorID, Start: start, PatientID: patientRef(),
	}, Actor{ID: uuid.New(), Role: RolePatient})
	require.NoError(t, err)
	return result.Appointment
}

func TestChangeStatus_ConfirmAndComplete(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctor := Actor{ID: uuid.New(), Role: RoleDoctor}

	appt := bookAt(t, svc, uuid.New(), monday.Add(9*time.Hour))

	confirmed, err := svc.ChangeStatus(context.Background(), appt.ID, StatusConfirmed, doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := svc.ChangeStatus(context.Background(), appt.ID, StatusCompleted, doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
}

func TestChangeStatus_PatientCannotConfirm(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))

	appt := bookAt(t, svc, uuid.New(), monday.Add(9*time.Hour))

	_, err := svc.ChangeStatus(context.Background(), appt.ID, StatusConfirmed,
		Actor{ID: uuid.New(), Role: RolePatient})

	var transition *TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, StatusPending, transition.From)
	assert.Equal(t, StatusConfirmed, transition.To)
}

func TestChangeStatus_WalkInFastPathPendingToCompleted(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctor := Actor{ID: uuid.New(), Role: RoleDoctor}

	result, err := svc.Book(context.Background(), BookingRequest{
		DoctorID: uuid.New(),
		Start:    monday.Add(9 * time.Hour),
		WalkIn:   &WalkIn{Name: "Sita KC", Email: "sita@example.com"},
	}, Actor{ID: uuid.New(), Role: RoleReceptionist})
	require.NoError(t, err)

	completed, err := svc.ChangeStatus(context.Background(), result.Appointment.ID, StatusCompleted, doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
}

func TestChangeStatus_TerminalStatesRejectTransitions(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctor := Actor{ID: uuid.New(), Role: RoleDoctor}

	appt := bookAt(t, svc, uuid.New(), monday.Add(9*time.Hour))
	_, err := svc.ChangeStatus(context.Background(), appt.ID, StatusCompleted, doctor)
	require.NoError(t, err)

	var transition *TransitionError
	_, err = svc.ChangeStatus(context.Background(), appt.ID, StatusCancelled, doctor)
	require.ErrorAs(t, err, &transition)
	assert.Contains(t, transition.Detail, "terminal")
}

func TestChangeStatus_CancellationWindowGuard(t *testing.T) {
	repo := NewMemoryRepository()
	start := monday.Add(9 * time.Hour)

	cases := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"well before window", start.Add(-3 * time.Hour), true},
		{"exactly at window boundary", start.Add(-2 * time.Hour), false},
		{"inside window", start.Add(-30 * time.Minute), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
			appt := bookAt(t, svc, uuid.New(), start)

			late := newTestService(repo, billing.Noop{}, fixedClock(tc.now))
			_, err := late.ChangeStatus(context.Background(), appt.ID, StatusCancelled,
				Actor{ID: uuid.New(), Role: RolePatient})

			if tc.allowed {
				assert.NoError(t, err)
			} else {
				var transition *TransitionError
				assert.ErrorAs(t, err, &transition)
			}
		})
	}
}

func TestChangeStatus_MissedRequiresSystemAndPastStart(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	start := monday.Add(9 * time.Hour)
	appt := bookAt(t, svc, uuid.New(), start)

	// Before the start, even SYSTEM cannot mark it missed.
	_, err := svc.ChangeStatus(context.Background(), appt.ID, StatusMissed,
		Actor{ID: uuid.New(), Role: RoleSystem})
	var transition *TransitionError
	require.ErrorAs(t, err, &transition)

	// A doctor can never mark missed directly.
	after := newTestService(repo, billing.Noop{}, fixedClock(start.Add(time.Minute)))
	_, err = after.ChangeStatus(context.Background(), appt.ID, StatusMissed,
		Actor{ID: uuid.New(), Role: RoleDoctor})
	require.Error(t, err)
}

func TestLazySweep_OverdueAppointmentReadsAsMissed(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	start := monday.Add(9 * time.Hour)
	appt := bookAt(t, svc, uuid.New(), start)

	// Read it back after the start has passed; no worker ran.
	later := newTestService(repo, billing.Noop{}, fixedClock(start.Add(time.Minute)))
	got, err := later.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, got.Status)
}

func TestLazySweep_ListMarksOverdue(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctorID := uuid.New()
	start := monday.Add(9 * time.Hour)
	appt := bookAt(t, svc, doctorID, start)

	later := newTestService(repo, billing.Noop{}, fixedClock(start.Add(time.Minute)))
	listed, err := later.ListAppointments(context.Background(), AppointmentFilter{DoctorID: &doctorID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, appt.ID, listed[0].ID)
	assert.Equal(t, StatusMissed, listed[0].Status)
}

func TestSweepMissed_OnlyTouchesOverdueActive(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctorID := uuid.New()

	overdue := bookAt(t, svc, doctorID, monday.Add(9*time.Hour))
	upcoming := bookAt(t, svc, doctorID, monday.Add(48*time.Hour))

	later := newTestService(repo, billing.Noop{}, fixedClock(monday.Add(10*time.Hour)))
	count, err := later.SweepMissed(context.Background(), &doctorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetAppointmentByID(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, got.Status)

	got, err = repo.GetAppointmentByID(context.Background(), upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestReopen_AdminOnlyAndRevalidated(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctorID := uuid.New()
	start := monday.Add(9 * time.Hour)

	appt := bookAt(t, svc, doctorID, start)
	_, err := svc.ChangeStatus(context.Background(), appt.ID, StatusCancelled,
		Actor{ID: uuid.New(), Role: RolePatient})
	require.NoError(t, err)

	// Non-admins cannot reopen.
	_, err = svc.ChangeStatus(context.Background(), appt.ID, StatusPending,
		Actor{ID: uuid.New(), Role: RoleDoctor})
	var transition *TransitionError
	require.ErrorAs(t, err, &transition)

	// Someone else takes the slot while it is cancelled.
	taken := bookAt(t, svc, doctorID, start)

	// Reopening now collides with the new booking.
	_, err = svc.ChangeStatus(context.Background(), appt.ID, StatusPending,
		Actor{ID: uuid.New(), Role: RoleAdmin})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Start.Equal(taken.Start))

	// Cancel the squatter and the reopen goes through.
	_, err = svc.ChangeStatus(context.Background(), taken.ID, StatusCancelled,
		Actor{ID: uuid.New(), Role: RoleAdmin})
	require.NoError(t, err)

	reopened, err := svc.ChangeStatus(context.Background(), appt.ID, StatusPending,
		Actor{ID: uuid.New(), Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reopened.Status)
}

func TestReschedule_MovesWindowPreservingDuration(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctorID := uuid.New()
	appt := bookAt(t, svc, doctorID, monday.Add(9*time.Hour))

	newStart := monday.Add(14 * time.Hour)
	moved, err := svc.Reschedule(context.Background(), appt.ID, newStart,
		Actor{ID: uuid.New(), Role: RolePatient})
	require.NoError(t, err)
	assert.True(t, moved.Start.Equal(newStart))
	assert.True(t, moved.End.Equal(newStart.Add(25*time.Minute)))

	// The old window is free again.
	_, err = svc.Book(context.Background(), BookingRequest{
		DoctorID: doctorID, Start: monday.Add(9 * time.Hour), PatientID: patientRef(),
	}, Actor{ID: uuid.New(), Role: RolePatient})
	assert.NoError(t, err)
}

func TestReschedule_GuardedByCancellationWindow(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	start := monday.Add(9 * time.Hour)
	appt := bookAt(t, svc, uuid.New(), start)

	// 90 minutes before start is inside the 2 hour window.
	late := newTestService(repo, billing.Noop{}, fixedClock(start.Add(-90*time.Minute)))
	_, err := late.Reschedule(context.Background(), appt.ID, start.Add(24*time.Hour),
		Actor{ID: uuid.New(), Role: RolePatient})

	var transition *TransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestReschedule_TargetWindowRevalidated(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	doctorID := uuid.New()

	appt := bookAt(t, svc, doctorID, monday.Add(9*time.Hour))
	blocker := bookAt(t, svc, doctorID, monday.Add(14*time.Hour))

	_, err := svc.Reschedule(context.Background(), appt.ID, monday.Add(14*time.Hour),
		Actor{ID: uuid.New(), Role: RolePatient})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Start.Equal(blocker.Start))
}

func TestReschedule_RejectsNonActive(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, billing.Noop{}, fixedClock(monday))
	appt := bookAt(t, svc, uuid.New(), monday.Add(9*time.Hour))

	_, err := svc.ChangeStatus(context.Background(), appt.ID, StatusCancelled,
		Actor{ID: uuid.New(), Role: RolePatient})
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), appt.ID, monday.Add(14*time.Hour),
		Actor{ID: uuid.New(), Role: RolePatient})

	var transition *TransitionError
	assert.ErrorAs(t, err, &transition)
}
