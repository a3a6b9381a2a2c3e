package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAbsenceNotFound     = errors.New("absence not found")
	ErrStaleStatus         = errors.New("appointment status changed concurrently")
)

// AppointmentFilter narrows listing queries. Nil fields are ignored.
type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *Status
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Repository contains all storage interactions needed by the engine.
type Repository interface {
	// Weekly availability windows
	ListWindows(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error)
	ListWindowsForDay(ctx context.Context, doctorID uuid.UUID, weekday int) ([]AvailabilityWindow, error)
	// ReplaceDayWindows atomically deletes all windows for (doctor, weekday)
	// and inserts the given ones.
	ReplaceDayWindows(ctx context.Context, doctorID uuid.UUID, weekday int, windows []AvailabilityWindow) ([]AvailabilityWindow, error)

	// Absences
	CreateAbsence(ctx context.Context, a Absence) (*Absence, error)
	GetAbsenceByID(ctx context.Context, id uuid.UUID) (*Absence, error)
	ApproveAbsence(ctx context.Context, id uuid.UUID) (*Absence, error)
	ListAbsencesOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, approvedOnly bool) ([]Absence, error)
	ListPendingAbsences(ctx context.Context) ([]Absence, error)

	// Appointments
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListAppointmentsOverlapping returns appointments for the doctor whose
	// [start, end) interval intersects the given one and whose status is in
	// statuses. exclude, when non-nil, skips that appointment ID (used by
	// reschedule to ignore the appointment being moved).
	ListAppointmentsOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, statuses []Status, exclude *uuid.UUID) ([]Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	// UpdateAppointmentStatus is a compare-and-swap: the row is only updated
	// if its current status equals from. Returns ErrStaleStatus otherwise.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	UpdateAppointmentWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error)
	// MarkMissedBefore flips PENDING/CONFIRMED appointments whose start has
	// passed cutoff to MISSED. doctorID nil means all doctors. Returns the
	// number of rows updated.
	MarkMissedBefore(ctx context.Context, doctorID *uuid.UUID, cutoff time.Time) (int64, error)
	CountAppointmentsByStatus(ctx context.Context, doctorID uuid.UUID) (map[Status]int, error)
}
