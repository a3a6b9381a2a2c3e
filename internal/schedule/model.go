package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusMissed    Status = "MISSED"
)

// ActiveStatuses are the statuses that occupy a doctor's calendar. Only
// these participate in overlap checks and slot exclusion.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

type Role string

const (
	RolePatient      Role = "PATIENT"
	RoleDoctor       Role = "DOCTOR"
	RoleAdmin        Role = "ADMIN"
	RoleReceptionist Role = "RECEPTIONIST"
	RoleSystem       Role = "SYSTEM"
)

// Actor identifies the already-authenticated caller of a mutating
// operation. Identity itself lives in an external service.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// WalkIn carries contact details for a patient without a registered
// account. Name and email are required, phone is optional.
type WalkIn struct {
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID *uuid.UUID
	WalkIn    *WalkIn
	Start     time.Time
	End       time.Time
	Status    Status
	Reason    string
	Notes     string
	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityWindow is one recurring weekly block during which a doctor
// accepts appointments. Weekday follows the clinic convention:
// 0 = Monday ... 6 = Sunday. StartMin/EndMin are minutes from midnight
// in the clinic timezone.
type AvailabilityWindow struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Weekday   int
	StartMin  int
	EndMin    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Absence is a doctor-declared unavailability interval. It only blocks
// slot generation and booking once approved by an admin.
type Absence struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Start     time.Time
	End       time.Time
	Reason    string
	Approved  bool
	CreatedAt time.Time
}

// Slot is a transient bookable window produced by the projector. It is
// never persisted.
type Slot struct {
	DoctorID uuid.UUID
	Start    time.Time
	End      time.Time
}

// Clock supplies the current instant. Injected so time-based rules are
// deterministic under test.
type Clock func() time.Time

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching endpoints do not count.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// mondayWeekday maps time.Weekday (Sunday = 0) onto the clinic's
// Monday = 0 convention.
func mondayWeekday(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
