package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Projector turns a doctor's weekly availability, approved absences and
// live appointments into the bookable slots for one calendar day. It is
// stateless; every call recomputes from storage.
type Projector struct {
	repo         Repository
	slotDuration time.Duration
	loc          *time.Location
	now          Clock
}

func NewProjector(repo Repository, slotDuration time.Duration, loc *time.Location, now Clock) *Projector {
	return &Projector{
		repo:         repo,
		slotDuration: slotDuration,
		loc:          loc,
		now:          now,
	}
}

// ProjectSlots returns the bookable slots for the doctor on the given
// date, in chronological order. date is interpreted in the clinic
// timezone; only its year/month/day are used.
func (p *Projector) ProjectSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	day := date.In(p.loc)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, p.loc)
	weekday := mondayWeekday(midnight.Weekday())

	windows, err := p.repo.ListWindowsForDay(ctx, doctorID, weekday)
	if err != nil {
		return nil, fmt.Errorf("load availability windows: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}

	dayStart := midnight
	dayEnd := midnight.Add(24 * time.Hour)

	absences, err := p.repo.ListAbsencesOverlapping(ctx, doctorID, dayStart, dayEnd, true)
	if err != nil {
		return nil, fmt.Errorf("load absences: %w", err)
	}

	booked, err := p.repo.ListAppointmentsOverlapping(ctx, doctorID, dayStart, dayEnd, ActiveStatuses, nil)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	now := p.now()

	var slots []Slot
	for _, w := range windows {
		windowStart := midnight.Add(time.Duration(w.StartMin) * time.Minute)
		windowEnd := midnight.Add(time.Duration(w.EndMin) * time.Minute)

		// Quantize into fixed-duration sub-intervals; a trailing remainder
		// shorter than slotDuration is discarded.
		for cur := windowStart; !cur.Add(p.slotDuration).After(windowEnd); cur = cur.Add(p.slotDuration) {
			slotEnd := cur.Add(p.slotDuration)

			if cur.Before(now) {
				continue
			}
			if p.blocked(cur, slotEnd, absences, booked) {
				continue
			}

			slots = append(slots, Slot{DoctorID: doctorID, Start: cur, End: slotEnd})
		}
	}

	// Windows come back ordered by start, so slots are already
	// chronological within and across windows (windows never overlap).
	return slots, nil
}

func (p *Projector) blocked(start, end time.Time, absences []Absence, booked []Appointment) bool {
	for _, a := range absences {
		if overlaps(start, end, a.Start, a.End) {
			return true
		}
	}
	for _, b := range booked {
		if overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}
