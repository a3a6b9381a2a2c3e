package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool in production and pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB is used by tests to swap in a mock pool.
func NewPgRepositoryWithDB(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&w.Weekday,
		&w.StartMin,
		&w.EndMin,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanAbsence(row pgx.Row) (*Absence, error) {
	var a Absence
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.Start,
		&a.End,
		&a.Reason,
		&a.Approved,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAbsenceNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		patientID   *uuid.UUID
		name, email *string
		phone       *string
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&patientID,
		&name,
		&email,
		&phone,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PatientID = patientID
	if name != nil && *name != "" {
		w := WalkIn{Name: *name}
		if email != nil {
			w.Email = *email
		}
		if phone != nil {
			w.Phone = *phone
		}
		a.WalkIn = &w
	}
	return &a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

const appointmentColumns = `id, doctor_id, patient_id, walkin_name, walkin_email, walkin_phone,
		       start_time, end_time, status, reason, notes, created_by, created_at, updated_at`

// Interface methods

func (r *PgRepository) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, weekday, start_min, end_min, created_at, updated_at
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_min
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func (r *PgRepository) ListWindowsForDay(ctx context.Context, doctorID uuid.UUID, weekday int) ([]AvailabilityWindow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, weekday, start_min, end_min, created_at, updated_at
		FROM availability_windows
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_min
	`, doctorID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWindows(rows)
}

func collectWindows(rows pgx.Rows) ([]AvailabilityWindow, error) {
	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ReplaceDayWindows(ctx context.Context, doctorID uuid.UUID, weekday int, windows []AvailabilityWindow) ([]AvailabilityWindow, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin replace windows: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE doctor_id = $1 AND weekday = $2
	`, doctorID, weekday); err != nil {
		return nil, fmt.Errorf("delete windows: %w", err)
	}

	created := make([]AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		row := tx.QueryRow(ctx, `
			INSERT INTO availability_windows (id, doctor_id, weekday, start_min, end_min, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			RETURNING id, doctor_id, weekday, start_min, end_min, created_at, updated_at
		`, uuid.New(), doctorID, weekday, w.StartMin, w.EndMin)

		inserted, err := scanWindow(row)
		if err != nil {
			return nil, fmt.Errorf("insert window: %w", err)
		}
		created = append(created, *inserted)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace windows: %w", err)
	}
	return created, nil
}

func (r *PgRepository) CreateAbsence(ctx context.Context, a Absence) (*Absence, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO absences (id, doctor_id, start_time, end_time, reason, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
		RETURNING id, doctor_id, start_time, end_time, reason, approved, created_at
	`, uuid.New(), a.DoctorID, a.Start, a.End, a.Reason)
	return scanAbsence(row)
}

func (r *PgRepository) GetAbsenceByID(ctx context.Context, id uuid.UUID) (*Absence, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, reason, approved, created_at
		FROM absences
		WHERE id = $1
	`, id)
	return scanAbsence(row)
}

func (r *PgRepository) ApproveAbsence(ctx context.Context, id uuid.UUID) (*Absence, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE absences
		SET approved = true
		WHERE id = $1
		RETURNING id, doctor_id, start_time, end_time, reason, approved, created_at
	`, id)
	return scanAbsence(row)
}

func (r *PgRepository) ListAbsencesOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, approvedOnly bool) ([]Absence, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, reason, approved, created_at
		FROM absences
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND (NOT $4 OR approved)
		ORDER BY start_time
	`, doctorID, start, end, approvedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAbsences(rows)
}

func (r *PgRepository) ListPendingAbsences(ctx context.Context) ([]Absence, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, reason, approved, created_at
		FROM absences
		WHERE NOT approved
		ORDER BY start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAbsences(rows)
}

func collectAbsences(rows pgx.Rows) ([]Absence, error) {
	var result []Absence
	for rows.Next() {
		a, err := scanAbsence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var (
		name, email, phone *string
	)
	if a.WalkIn != nil {
		name, email, phone = &a.WalkIn.Name, &a.WalkIn.Email, &a.WalkIn.Phone
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, walkin_name, walkin_email, walkin_phone,
		                          start_time, end_time, status, reason, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.DoctorID, a.PatientID, name, email, phone,
		a.Start, a.End, a.Status, a.Reason, a.Notes, a.CreatedBy)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, statuses []Status, exclude *uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND status = ANY($4)
		  AND ($5::uuid IS NULL OR id <> $5)
		ORDER BY start_time
	`, doctorID, start, end, statusStrings(statuses), exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::uuid IS NULL OR patient_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::timestamptz IS NULL OR start_time >= $4)
		  AND ($5::timestamptz IS NULL OR start_time <= $5)
		ORDER BY start_time DESC
		LIMIT $6 OFFSET $7
	`, f.DoctorID, f.PatientID, statusPtr(f.Status), f.From, f.To, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func statusPtr(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Distinguish "no such row" from "row moved on concurrently".
		if _, getErr := r.GetAppointmentByID(ctx, id); getErr == nil {
			return nil, ErrStaleStatus
		}
		return nil, ErrAppointmentNotFound
	}
	return appt, err
}

func (r *PgRepository) UpdateAppointmentWindow(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, start, end)
	return scanAppointment(row)
}

func (r *PgRepository) MarkMissedBefore(ctx context.Context, doctorID *uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $1,
		    updated_at = now()
		WHERE start_time < $2
		  AND status = ANY($3)
		  AND ($4::uuid IS NULL OR doctor_id = $4)
	`, StatusMissed, cutoff, statusStrings(ActiveStatuses), doctorID)
	if err != nil {
		return 0, fmt.Errorf("mark missed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) CountAppointmentsByStatus(ctx context.Context, doctorID uuid.UUID) (map[Status]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE doctor_id = $1
		GROUP BY status
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			s Status
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
