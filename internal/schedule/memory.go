package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository. It backs the
// service tests and the offline mode of cmd/simulate; production uses
// PgRepository.
type MemoryRepository struct {
	mu           sync.Mutex
	windows      map[uuid.UUID]AvailabilityWindow
	absences     map[uuid.UUID]Absence
	appointments map[uuid.UUID]Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		windows:      make(map[uuid.UUID]AvailabilityWindow),
		absences:     make(map[uuid.UUID]Absence),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *MemoryRepository) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []AvailabilityWindow
	for _, w := range r.windows {
		if w.DoctorID == doctorID {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Weekday != result[j].Weekday {
			return result[i].Weekday < result[j].Weekday
		}
		return result[i].StartMin < result[j].StartMin
	})
	return result, nil
}

func (r *MemoryRepository) ListWindowsForDay(ctx context.Context, doctorID uuid.UUID, weekday int) ([]AvailabilityWindow, error) {
	all, err := r.ListWindows(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	var result []AvailabilityWindow
	for _, w := range all {
		if w.Weekday == weekday {
			result = append(result, w)
		}
	}
	return result, nil
}

func (r *MemoryRepository) ReplaceDayWindows(ctx context.Context, doctorID uuid.UUID, weekday int, windows []AvailabilityWindow) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.windows {
		if w.DoctorID == doctorID && w.Weekday == weekday {
			delete(r.windows, id)
		}
	}

	now := time.Now()
	created := make([]AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		w.ID = uuid.New()
		w.DoctorID = doctorID
		w.Weekday = weekday
		w.CreatedAt = now
		w.UpdatedAt = now
		r.windows[w.ID] = w
		created = append(created, w)
	}
	return created, nil
}

func (r *MemoryRepository) CreateAbsence(ctx context.Context, a Absence) (*Absence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a.ID = uuid.New()
	a.Approved = false
	a.CreatedAt = time.Now()
	r.absences[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) GetAbsenceByID(ctx context.Context, id uuid.UUID) (*Absence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.absences[id]
	if !ok {
		return nil, ErrAbsenceNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ApproveAbsence(ctx context.Context, id uuid.UUID) (*Absence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.absences[id]
	if !ok {
		return nil, ErrAbsenceNotFound
	}
	a.Approved = true
	r.absences[id] = a
	return &a, nil
}

func (r *MemoryRepository) ListAbsencesOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, approvedOnly bool) ([]Absence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Absence
	for _, a := range r.absences {
		if a.DoctorID != doctorID {
			continue
		}
		if approvedOnly && !a.Approved {
			continue
		}
		if overlaps(a.Start, a.End, start, end) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (r *MemoryRepository) ListPendingAbsences(ctx context.Context) ([]Absence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Absence
	for _, a := range r.absences {
		if !a.Approved {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (r *MemoryRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, statuses []Status, exclude *uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}

	var result []Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || !allowed[a.Status] {
			continue
		}
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if overlaps(a.Start, a.End, start, end) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (r *MemoryRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.From != nil && a.Start.Before(*f.From) {
			continue
		}
		if f.To != nil && a.Start.After(*f.To) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.After(result[j].Start) })

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Start = start
	a.End = end
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) MarkMissedBefore(ctx context.Context, doctorID *uuid.UUID, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, a := range r.appointments {
		if doctorID != nil && a.DoctorID != *doctorID {
			continue
		}
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			continue
		}
		if a.Start.Before(cutoff) {
			a.Status = StatusMissed
			a.UpdatedAt = time.Now()
			r.appointments[id] = a
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) CountAppointmentsByStatus(ctx context.Context, doctorID uuid.UUID) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[Status]int)
	for _, a := range r.appointments {
		if a.DoctorID == doctorID {
			counts[a.Status]++
		}
	}
	return counts, nil
}
