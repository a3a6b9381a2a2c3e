package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sajilocms/scheduling-engine/internal/schedule"
)

func createBookingHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		booking := schedule.BookingRequest{
			DoctorID: doctorID,
			Start:    req.Start,
			Reason:   req.Reason,
		}
		if req.End != nil {
			booking.End = *req.End
		}
		if req.PatientID != nil {
			patientID, err := uuid.Parse(*req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			booking.PatientID = &patientID
		}
		if req.WalkIn != nil {
			booking.WalkIn = &schedule.WalkIn{
				Name:  req.WalkIn.Name,
				Email: req.WalkIn.Email,
				Phone: req.WalkIn.Phone,
			}
		}

		result, err := svc.Book(r.Context(), booking, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := BookingResponse{Appointment: toAppointmentResponse(result.Appointment)}
		if result.BillingWarning != nil {
			resp.BillingWarning = result.BillingWarning.Error()
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := filterFromQuery(r, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		appts, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func changeStatusHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ChangeStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), id, schedule.Status(req.Status), actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.NewStart, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Start:     a.Start,
		End:       a.End,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Notes:     a.Notes,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.WalkIn != nil {
		resp.WalkIn = &WalkInPayload{
			Name:  a.WalkIn.Name,
			Email: a.WalkIn.Email,
			Phone: a.WalkIn.Phone,
		}
	}
	return resp
}

// handleServiceError maps the engine's error taxonomy to HTTP statuses.
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *schedule.ValidationError
		conflictErr   *schedule.ConflictError
		transitionErr *schedule.TransitionError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:         "conflict",
			Details:       conflictErr.Error(),
			ConflictStart: &conflictErr.Start,
			ConflictEnd:   &conflictErr.End,
		})
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "transition_error", transitionErr.Error())
	case errors.Is(err, schedule.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "doctor_busy", "doctor is busy processing another booking, retry shortly")
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrAbsenceNotFound):
		writeError(w, http.StatusNotFound, "absence_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
