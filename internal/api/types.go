package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type WalkInPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type CreateBookingRequest struct {
	DoctorID  string         `json:"doctor_id"`
	Start     time.Time      `json:"start"`
	End       *time.Time     `json:"end,omitempty"`
	PatientID *string        `json:"patient_id,omitempty"`
	WalkIn    *WalkInPayload `json:"walk_in,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID        uuid.UUID      `json:"id"`
	DoctorID  uuid.UUID      `json:"doctor_id"`
	PatientID *uuid.UUID     `json:"patient_id,omitempty"`
	WalkIn    *WalkInPayload `json:"walk_in,omitempty"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	CreatedBy uuid.UUID      `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type BookingResponse struct {
	Appointment    AppointmentResponse `json:"appointment"`
	BillingWarning string              `json:"billing_warning,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	NewStart time.Time `json:"new_start"`
}

type ScheduleEntryPayload struct {
	Day   int    `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type SetScheduleRequest struct {
	Slots []ScheduleEntryPayload `json:"slots"`
}

type WindowResponse struct {
	ID    uuid.UUID `json:"id"`
	Day   int       `json:"day"`
	Start string    `json:"start"`
	End   string    `json:"end"`
}

type SetScheduleResponse struct {
	CreatedWindows []WindowResponse `json:"created_windows"`
}

type CreateAbsenceRequest struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

type AbsenceResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Reason   string    `json:"reason,omitempty"`
	Approved bool      `json:"approved"`
}

type StatsResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Counts   map[string]int `json:"counts"`
}

type ErrorResponse struct {
	Error         string     `json:"error"`
	Details       string     `json:"details,omitempty"`
	ConflictStart *time.Time `json:"conflict_start,omitempty"`
	ConflictEnd   *time.Time `json:"conflict_end,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
