package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sajilocms/scheduling-engine/internal/schedule"
)

func getSlotsHandler(svc *schedule.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.GetSlots(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := SlotsResponse{
			DoctorID: doctorID,
			Date:     dateStr,
			Slots:    make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start, End: s.End})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func setScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if !requireRole(w, actor, schedule.RoleDoctor, schedule.RoleAdmin, schedule.RoleReceptionist) {
			return
		}

		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req SetScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entries := make([]schedule.ScheduleEntry, 0, len(req.Slots))
		for _, s := range req.Slots {
			startMin, err := schedule.ParseClock(s.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", fmt.Sprintf("start %q must be HH:MM", s.Start))
				return
			}
			endMin, err := schedule.ParseClock(s.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", fmt.Sprintf("end %q must be HH:MM", s.End))
				return
			}
			entries = append(entries, schedule.ScheduleEntry{Weekday: s.Day, StartMin: startMin, EndMin: endMin})
		}

		created, err := svc.SetWeeklySchedule(r.Context(), doctorID, entries, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := SetScheduleResponse{CreatedWindows: make([]WindowResponse, 0, len(created))}
		for _, win := range created {
			resp.CreatedWindows = append(resp.CreatedWindows, toWindowResponse(win))
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		windows, err := svc.ListSchedule(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]WindowResponse, 0, len(windows))
		for _, win := range windows {
			resp = append(resp, toWindowResponse(win))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAbsenceHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if !requireRole(w, actor, schedule.RoleDoctor, schedule.RoleAdmin, schedule.RoleReceptionist) {
			return
		}

		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		var req CreateAbsenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		absence, err := svc.CreateAbsence(r.Context(), doctorID, req.Start, req.End, req.Reason, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAbsenceResponse(absence))
	}
}

func approveAbsenceHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if !requireRole(w, actor, schedule.RoleAdmin) {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_absence_id", "id must be a valid UUID")
			return
		}

		absence, err := svc.ApproveAbsence(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAbsenceResponse(absence))
	}
}

func pendingAbsencesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if !requireRole(w, actor, schedule.RoleAdmin) {
			return
		}

		pending, err := svc.ListPendingAbsences(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AbsenceResponse, 0, len(pending))
		for i := range pending {
			resp = append(resp, toAbsenceResponse(&pending[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorStatsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if !requireRole(w, actor, schedule.RoleAdmin, schedule.RoleReceptionist) {
			return
		}

		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		counts, err := svc.DoctorStats(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := StatsResponse{DoctorID: doctorID, Counts: make(map[string]int, len(counts))}
		for status, n := range counts {
			resp.Counts[string(status)] = n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func toWindowResponse(w schedule.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:    w.ID,
		Day:   w.Weekday,
		Start: schedule.FormatClock(w.StartMin),
		End:   schedule.FormatClock(w.EndMin),
	}
}

func toAbsenceResponse(a *schedule.Absence) AbsenceResponse {
	return AbsenceResponse{
		ID:       a.ID,
		DoctorID: a.DoctorID,
		Start:    a.Start,
		End:      a.End,
		Reason:   a.Reason,
		Approved: a.Approved,
	}
}

// filterFromQuery builds an appointment listing filter from query
// parameters: doctor_id, patient_id, status, date_from, date_to
// (YYYY-MM-DD, clinic timezone), limit, offset.
func filterFromQuery(r *http.Request, loc *time.Location) (schedule.AppointmentFilter, error) {
	var f schedule.AppointmentFilter
	q := r.URL.Query()

	if v := q.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("doctor_id must be a valid UUID")
		}
		f.DoctorID = &id
	}
	if v := q.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("patient_id must be a valid UUID")
		}
		f.PatientID = &id
	}
	if v := q.Get("status"); v != "" {
		s := schedule.Status(v)
		f.Status = &s
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return f, fmt.Errorf("date_from must be YYYY-MM-DD")
		}
		f.From = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return f, fmt.Errorf("date_to must be YYYY-MM-DD")
		}
		end := t.Add(24*time.Hour - time.Second)
		f.To = &end
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("limit must be an integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("offset must be an integer")
		}
		f.Offset = n
	}
	return f, nil
}
