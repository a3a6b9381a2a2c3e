package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "doctor_id", "patient_id", "walkin_name", "walkin_email", "walkin_phone",
	"start_time", "end_time", "status", "reason", "notes", "created_by", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepositoryWithDB(mock), mock
}

func appointmentRow(id, doctorID uuid.UUID, patientID *uuid.UUID, status Status, start, end time.Time) *pgxmock.Rows {
	var name, email, phone *string
	return pgxmock.NewRows(appointmentCols).AddRow(
		id, doctorID, patientID, name, email, phone,
		start, end, status, "checkup", "", doctorID, start, start,
	)
}

func TestPgGetAppointmentByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	doctorID := uuid.New()
	patientID := uuid.New()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(appointmentRow(id, doctorID, &patientID, StatusPending, start, start.Add(25*time.Minute)))

	got, err := repo.GetAppointmentByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.PatientID)
	assert.Equal(t, patientID, *got.PatientID)
	assert.Nil(t, got.WalkIn)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgWalkInReconstruction(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	doctorID := uuid.New()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	name, email, phone := "Ram Thapa", "ram@example.com", "9800000000"

	rows := pgxmock.NewRows(appointmentCols).AddRow(
		id, doctorID, (*uuid.UUID)(nil), &name, &email, &phone,
		start, start.Add(25*time.Minute), StatusPending, "", "", doctorID, start, start,
	)
	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(rows)

	got, err := repo.GetAppointmentByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got.PatientID)
	require.NotNil(t, got.WalkIn)
	assert.Equal(t, name, got.WalkIn.Name)
	assert.Equal(t, email, got.WalkIn.Email)
	assert.Equal(t, phone, got.WalkIn.Phone)
}

func TestPgUpdateAppointmentStatus_StaleStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	doctorID := uuid.New()
	patientID := uuid.New()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	// The CAS update matches no row because the status moved.
	mock.ExpectQuery(`UPDATE appointments\s+SET status = \$2`).
		WithArgs(id, StatusConfirmed, StatusPending).
		WillReturnError(pgx.ErrNoRows)

	// The row still exists, so the failure is a stale status.
	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(appointmentRow(id, doctorID, &patientID, StatusCancelled, start, start.Add(25*time.Minute)))

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusPending, StatusConfirmed)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatus_RowGone(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery(`UPDATE appointments\s+SET status = \$2`).
		WithArgs(id, StatusConfirmed, StatusPending).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusPending, StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgMarkMissedBefore(t *testing.T) {
	repo, mock := newMockRepo(t)

	cutoff := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE appointments\s+SET status = \$1`).
		WithArgs(StatusMissed, cutoff, statusStrings(ActiveStatuses), (*uuid.UUID)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	count, err := repo.MarkMissedBefore(context.Background(), nil, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListWindowsForDay(t *testing.T) {
	repo, mock := newMockRepo(t)

	doctorID := uuid.New()
	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "doctor_id", "weekday", "start_min", "end_min", "created_at", "updated_at"}).
		AddRow(uuid.New(), doctorID, 0, 9*60, 12*60, now, now).
		AddRow(uuid.New(), doctorID, 0, 13*60, 17*60, now, now)

	mock.ExpectQuery(`FROM availability_windows\s+WHERE doctor_id = \$1 AND weekday = \$2`).
		WithArgs(doctorID, 0).
		WillReturnRows(rows)

	windows, err := repo.ListWindowsForDay(context.Background(), doctorID, 0)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, 9*60, windows[0].StartMin)
	assert.Equal(t, 13*60, windows[1].StartMin)
}

func TestPgReplaceDayWindows_TransactionFlow(t *testing.T) {
	repo, mock := newMockRepo(t)

	doctorID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM availability_windows`).
		WithArgs(doctorID, 0).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectQuery(`INSERT INTO availability_windows`).
		WithArgs(pgxmock.AnyArg(), doctorID, 0, 9*60, 12*60).
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "weekday", "start_min", "end_min", "created_at", "updated_at"}).
			AddRow(uuid.New(), doctorID, 0, 9*60, 12*60, now, now))
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback after commit is a no-op

	created, err := repo.ReplaceDayWindows(context.Background(), doctorID, 0, []AvailabilityWindow{
		{StartMin: 9 * 60, EndMin: 12 * 60},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 9*60, created[0].StartMin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAbsence(t *testing.T) {
	repo, mock := newMockRepo(t)

	doctorID := uuid.New()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO absences`).
		WithArgs(pgxmock.AnyArg(), doctorID, start, end, "leave").
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "start_time", "end_time", "reason", "approved", "created_at"}).
			AddRow(uuid.New(), doctorID, start, end, "leave", false, now))

	created, err := repo.CreateAbsence(context.Background(), Absence{
		DoctorID: doctorID, Start: start, End: end, Reason: "leave",
	})
	require.NoError(t, err)
	assert.False(t, created.Approved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
