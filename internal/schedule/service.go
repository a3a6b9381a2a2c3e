package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sajilocms/scheduling-engine/internal/billing"
	"github.com/sajilocms/scheduling-engine/internal/config"
	"github.com/sajilocms/scheduling-engine/internal/redlock"
)

// Service is the availability and booking engine: slot projection,
// serialized booking, the appointment lifecycle and the availability and
// absence validators.
type Service struct {
	repo               Repository
	locker             redlock.Locker
	charger            billing.ChargeAttacher
	projector          *Projector
	log                zerolog.Logger
	now                Clock
	slotDuration       time.Duration
	cancellationWindow time.Duration
	loc                *time.Location
	billingAmountCents int64
}

// NewService wires the engine. clock may be nil, in which case wall-clock
// time is used; tests inject a fixed clock.
func NewService(repo Repository, locker redlock.Locker, charger billing.ChargeAttacher, cfg config.Config, log zerolog.Logger, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:               repo,
		locker:             locker,
		charger:            charger,
		projector:          NewProjector(repo, cfg.SlotDuration, cfg.Location, clock),
		log:                log,
		now:                clock,
		slotDuration:       cfg.SlotDuration,
		cancellationWindow: cfg.CancellationWindow,
		loc:                cfg.Location,
		billingAmountCents: cfg.BillingAmountCents,
	}
}

// BookingRequest carries everything CreateBooking needs. End may be zero,
// in which case it defaults to Start plus the configured slot duration.
type BookingRequest struct {
	DoctorID  uuid.UUID
	Start     time.Time
	End       time.Time
	PatientID *uuid.UUID
	WalkIn    *WalkIn
	Reason    string
}

// BookingResult pairs a successfully created appointment with an optional
// non-fatal billing warning. The warning never invalidates the booking.
type BookingResult struct {
	Appointment    *Appointment
	BillingWarning error
}

// Book validates the request against live state inside the per-doctor
// serialized section and creates a PENDING appointment. Concurrent
// requests for overlapping windows on the same doctor resolve with
// exactly one winner; the loser gets a ConflictError.
func (s *Service) Book(ctx context.Context, req BookingRequest, actor Actor) (*BookingResult, error) {
	if req.DoctorID == uuid.Nil {
		return nil, validationErr("doctor_id", "required")
	}

	end := req.End
	if end.IsZero() {
		end = req.Start.Add(s.slotDuration)
	}
	if !end.After(req.Start) {
		return nil, validationErr("end", "must be after start")
	}
	if err := validatePatientIdentity(req.PatientID, req.WalkIn); err != nil {
		return nil, err
	}
	if req.Start.Before(s.now()) {
		return nil, validationErr("start", "cannot book in the past")
	}

	appt := Appointment{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		WalkIn:    req.WalkIn,
		Start:     req.Start.In(s.loc),
		End:       end.In(s.loc),
		Status:    StatusPending,
		Reason:    req.Reason,
		CreatedBy: actor.ID,
	}

	var created *Appointment
	err := s.locker.WithDoctorLock(ctx, req.DoctorID, func(lockCtx context.Context) error {
		// Re-run the projector's overlap and absence checks against live
		// state inside the critical section.
		if err := s.checkConflicts(lockCtx, appt.DoctorID, appt.Start, appt.End, nil); err != nil {
			return err
		}

		var err error
		created, err = s.repo.InsertAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapLockErr(err)
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Time("start", created.Start).
		Str("created_by", actor.ID.String()).
		Msg("appointment booked")

	// The billing hook runs outside the lock: it may be slow or fail and
	// must not block other bookings or roll this one back.
	result := &BookingResult{Appointment: created}
	if s.charger != nil {
		if err := s.charger.AttachCharge(ctx, created.ID, s.billingAmountCents); err != nil {
			result.BillingWarning = &DependencyError{Op: "attach charge", Err: err}
			s.log.Warn().
				Err(err).
				Str("appointment_id", created.ID.String()).
				Msg("billing hook failed, appointment kept")
		}
	}
	return result, nil
}

// Reschedule moves an active appointment to a new start, preserving its
// duration. Only permitted before the cancellation window closes, and the
// new window clears the same conflict checks as a fresh booking.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, actor Actor) (*Appointment, error) {
	appt, err := s.loadSwept(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, &TransitionError{
			From:   appt.Status,
			To:     appt.Status,
			Detail: "only pending or confirmed appointments can be rescheduled",
		}
	}
	if !canCancelOrReschedule(appt, s.now(), s.cancellationWindow) {
		return nil, &TransitionError{
			From:   appt.Status,
			To:     appt.Status,
			Detail: fmt.Sprintf("rescheduling closes %s before the appointment start", s.cancellationWindow),
		}
	}
	if newStart.Before(s.now()) {
		return nil, validationErr("new_start", "cannot reschedule into the past")
	}

	newStart = newStart.In(s.loc)
	newEnd := newStart.Add(appt.End.Sub(appt.Start))

	var updated *Appointment
	err = s.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, appt.DoctorID, newStart, newEnd, &appt.ID); err != nil {
			return err
		}
		var err error
		updated, err = s.repo.UpdateAppointmentWindow(lockCtx, appt.ID, newStart, newEnd)
		return err
	})
	if err != nil {
		return nil, s.mapLockErr(err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Time("new_start", updated.Start).
		Str("actor_id", actor.ID.String()).
		Msg("appointment rescheduled")

	return updated, nil
}

// GetSlots sweeps overdue appointments for the doctor, then projects the
// bookable slots for the date.
func (s *Service) GetSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.SweepMissed(ctx, &doctorID); err != nil {
		return nil, fmt.Errorf("sweep before projection: %w", err)
	}
	return s.projector.ProjectSlots(ctx, doctorID, date)
}

// GetAppointment returns a single appointment, swept first.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.loadSwept(ctx, id)
}

// ListAppointments sweeps, then lists with the given filter.
func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	if _, err := s.SweepMissed(ctx, f.DoctorID); err != nil {
		return nil, fmt.Errorf("sweep before list: %w", err)
	}
	return s.repo.ListAppointments(ctx, f)
}

// DoctorStats returns per-status appointment counts for a doctor.
func (s *Service) DoctorStats(ctx context.Context, doctorID uuid.UUID) (map[Status]int, error) {
	if _, err := s.SweepMissed(ctx, &doctorID); err != nil {
		return nil, fmt.Errorf("sweep before stats: %w", err)
	}
	return s.repo.CountAppointmentsByStatus(ctx, doctorID)
}

// ScheduleEntry is one weekly availability block in a SetWeeklySchedule
// request. Minutes are from midnight, clinic timezone.
type ScheduleEntry struct {
	Weekday  int
	StartMin int
	EndMin   int
}

// SetWeeklySchedule replaces a doctor's availability for every day that
// appears in entries: all existing windows for that day are deleted and
// the given ones created atomically. Days not mentioned are untouched.
func (s *Service) SetWeeklySchedule(ctx context.Context, doctorID uuid.UUID, entries []ScheduleEntry, actor Actor) ([]AvailabilityWindow, error) {
	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id", "required")
	}

	byDay := make(map[int][]AvailabilityWindow)
	for _, e := range entries {
		if e.Weekday < 0 || e.Weekday > 6 {
			return nil, validationErr("day", fmt.Sprintf("weekday %d out of range 0..6", e.Weekday))
		}
		if e.StartMin >= e.EndMin {
			return nil, validationErr("end", "must be after start")
		}
		for _, existing := range byDay[e.Weekday] {
			if e.StartMin < existing.EndMin && existing.StartMin < e.EndMin {
				return nil, &ConflictError{With: "availability window",
					Start: minuteInstant(existing.StartMin), End: minuteInstant(existing.EndMin)}
			}
		}
		byDay[e.Weekday] = append(byDay[e.Weekday], AvailabilityWindow{
			DoctorID: doctorID,
			Weekday:  e.Weekday,
			StartMin: e.StartMin,
			EndMin:   e.EndMin,
		})
	}

	var created []AvailabilityWindow
	for day, windows := range byDay {
		inserted, err := s.repo.ReplaceDayWindows(ctx, doctorID, day, windows)
		if err != nil {
			return nil, fmt.Errorf("replace windows for day %d: %w", day, err)
		}
		created = append(created, inserted...)
	}

	s.log.Info().
		Str("doctor_id", doctorID.String()).
		Int("windows", len(created)).
		Str("actor_id", actor.ID.String()).
		Msg("weekly schedule updated")

	return created, nil
}

// ListSchedule returns all weekly availability windows for a doctor.
func (s *Service) ListSchedule(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	return s.repo.ListWindows(ctx, doctorID)
}

// CreateAbsence records an unapproved time-off interval. It must not
// overlap any other absence for the doctor, approved or not.
func (s *Service) CreateAbsence(ctx context.Context, doctorID uuid.UUID, start, end time.Time, reason string, actor Actor) (*Absence, error) {
	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id", "required")
	}
	if !end.After(start) {
		return nil, validationErr("end", "must be after start")
	}

	existing, err := s.repo.ListAbsencesOverlapping(ctx, doctorID, start, end, false)
	if err != nil {
		return nil, fmt.Errorf("check absence overlap: %w", err)
	}
	if len(existing) > 0 {
		return nil, &ConflictError{With: "absence", Start: existing[0].Start, End: existing[0].End}
	}

	created, err := s.repo.CreateAbsence(ctx, Absence{
		DoctorID: doctorID,
		Start:    start.In(s.loc),
		End:      end.In(s.loc),
		Reason:   reason,
	})
	if err != nil {
		return nil, fmt.Errorf("create absence: %w", err)
	}

	s.log.Info().
		Str("absence_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("absence requested")

	return created, nil
}

// ApproveAbsence marks an absence approved. The transition is one-way;
// approving an already-approved absence is a no-op.
func (s *Service) ApproveAbsence(ctx context.Context, id uuid.UUID, actor Actor) (*Absence, error) {
	approved, err := s.repo.ApproveAbsence(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("absence_id", approved.ID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("absence approved")

	return approved, nil
}

// ListPendingAbsences returns absences awaiting approval.
func (s *Service) ListPendingAbsences(ctx context.Context) ([]Absence, error) {
	return s.repo.ListPendingAbsences(ctx)
}

// checkConflicts is the shared validate step for booking, reschedule and
// re-open: the window must not overlap an active appointment or an
// approved absence. Callers hold the doctor lock.
func (s *Service) checkConflicts(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) error {
	booked, err := s.repo.ListAppointmentsOverlapping(ctx, doctorID, start, end, ActiveStatuses, exclude)
	if err != nil {
		return fmt.Errorf("check appointment overlap: %w", err)
	}
	if len(booked) > 0 {
		return &ConflictError{With: "appointment", Start: booked[0].Start, End: booked[0].End}
	}

	absences, err := s.repo.ListAbsencesOverlapping(ctx, doctorID, start, end, true)
	if err != nil {
		return fmt.Errorf("check absence overlap: %w", err)
	}
	if len(absences) > 0 {
		return &ConflictError{With: "absence", Start: absences[0].Start, End: absences[0].End}
	}
	return nil
}

func (s *Service) mapLockErr(err error) error {
	if errors.Is(err, redlock.ErrNotAcquired) {
		return ErrBusy
	}
	return err
}

func validatePatientIdentity(patientID *uuid.UUID, walkIn *WalkIn) error {
	hasPatient := patientID != nil && *patientID != uuid.Nil
	hasWalkIn := walkIn != nil && walkIn.Name != "" && walkIn.Email != ""

	switch {
	case hasPatient && hasWalkIn:
		return validationErr("patient", "provide either a patient reference or walk-in details, not both")
	case !hasPatient && !hasWalkIn:
		return validationErr("patient", "a patient reference or walk-in name and email is required")
	}
	return nil
}

// minuteInstant renders a minutes-from-midnight offset on a reference day
// so ConflictError can carry it as a time. Only the clock part matters.
func minuteInstant(min int) time.Time {
	return time.Date(2000, 1, 3, 0, 0, 0, 0, time.UTC).Add(time.Duration(min) * time.Minute)
}
