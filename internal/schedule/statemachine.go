package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// transitionRule describes one legal edge of the appointment lifecycle.
type transitionRule struct {
	roles []Role
	guard func(a *Appointment, now time.Time, cancellationWindow time.Duration) error
}

func (r transitionRule) allows(role Role) bool {
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func cancellationGuard(a *Appointment, now time.Time, window time.Duration) error {
	if !now.Before(a.Start.Add(-window)) {
		return &TransitionError{
			From:   a.Status,
			To:     StatusCancelled,
			Detail: fmt.Sprintf("cancellation closes %s before the appointment start", window),
		}
	}
	return nil
}

func missedGuard(a *Appointment, now time.Time, _ time.Duration) error {
	if !now.After(a.Start) {
		return &TransitionError{
			From:   a.Status,
			To:     StatusMissed,
			Detail: "appointment start has not passed",
		}
	}
	return nil
}

var transitions = map[Status]map[Status]transitionRule{
	StatusPending: {
		StatusConfirmed: {roles: []Role{RoleDoctor, RoleReceptionist}},
		StatusCancelled: {
			roles: []Role{RolePatient, RoleDoctor, RoleAdmin, RoleReceptionist},
			guard: cancellationGuard,
		},
		// Walk-in fast path: a doctor can close out a pending walk-in
		// without confirming first.
		StatusCompleted: {roles: []Role{RoleDoctor}},
		StatusMissed:    {roles: []Role{RoleSystem}, guard: missedGuard},
	},
	StatusConfirmed: {
		StatusCompleted: {roles: []Role{RoleDoctor}},
		StatusCancelled: {
			roles: []Role{RolePatient, RoleDoctor, RoleAdmin, RoleReceptionist},
			guard: cancellationGuard,
		},
		StatusMissed: {roles: []Role{RoleSystem}, guard: missedGuard},
	},
	StatusCancelled: {
		StatusPending: {roles: []Role{RoleAdmin}},
	},
}

// canCancelOrReschedule is the single guard shared by cancellation and
// reschedule: both close cancellationWindow before the appointment start.
func canCancelOrReschedule(a *Appointment, now time.Time, window time.Duration) bool {
	return now.Before(a.Start.Add(-window))
}

// ChangeStatus moves an appointment through the lifecycle, enforcing the
// transition table, role restrictions and time-window guards.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, target Status, actor Actor) (*Appointment, error) {
	appt, err := s.loadSwept(ctx, id)
	if err != nil {
		return nil, err
	}

	rules, ok := transitions[appt.Status]
	if !ok {
		return nil, &TransitionError{From: appt.Status, To: target, Detail: "status is terminal"}
	}
	rule, ok := rules[target]
	if !ok {
		return nil, &TransitionError{From: appt.Status, To: target}
	}
	if !rule.allows(actor.Role) {
		return nil, &TransitionError{
			From:   appt.Status,
			To:     target,
			Detail: fmt.Sprintf("role %s may not perform this transition", actor.Role),
		}
	}
	if rule.guard != nil {
		if err := rule.guard(appt, s.now(), s.cancellationWindow); err != nil {
			return nil, err
		}
	}

	// Re-opening a cancelled appointment puts its window back on the
	// calendar, so it must clear the same conflict checks as a booking.
	if appt.Status == StatusCancelled && target == StatusPending {
		return s.reopen(ctx, appt)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, target)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(updated.Status)).
		Str("actor_id", actor.ID.String()).
		Str("actor_role", string(actor.Role)).
		Msg("appointment status changed")

	return updated, nil
}

func (s *Service) reopen(ctx context.Context, appt *Appointment) (*Appointment, error) {
	var updated *Appointment
	err := s.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, appt.DoctorID, appt.Start, appt.End, &appt.ID); err != nil {
			return err
		}
		var err error
		updated, err = s.repo.UpdateAppointmentStatus(lockCtx, appt.ID, StatusCancelled, StatusPending)
		return err
	})
	if err != nil {
		return nil, s.mapLockErr(err)
	}
	return updated, nil
}

// loadSwept fetches an appointment after reclassifying it as MISSED if
// its start has already passed while PENDING/CONFIRMED. Callers never
// observe a stale active status.
func (s *Service) loadSwept(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if (appt.Status == StatusPending || appt.Status == StatusConfirmed) && now.After(appt.Start) {
		swept, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusMissed)
		if err == nil {
			return swept, nil
		}
		if errors.Is(err, ErrStaleStatus) {
			// Someone else swept or moved it; reload.
			return s.repo.GetAppointmentByID(ctx, id)
		}
		return nil, fmt.Errorf("sweep overdue appointment: %w", err)
	}
	return appt, nil
}

// SweepMissed reclassifies every overdue PENDING/CONFIRMED appointment as
// MISSED. doctorID nil sweeps all doctors. This lazy sweep is the
// correctness-bearing mechanism; the cron worker only adds freshness.
func (s *Service) SweepMissed(ctx context.Context, doctorID *uuid.UUID) (int64, error) {
	count, err := s.repo.MarkMissedBefore(ctx, doctorID, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info().Int64("count", count).Msg("marked overdue appointments as missed")
	}
	return count, nil
}
