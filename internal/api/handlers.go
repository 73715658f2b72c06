package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/conversation"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

func startSessionHandler(m *conversation.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := m.StartSession(r.Context())
		writeJSON(w, http.StatusCreated, toSessionResponse(reply))
	}
}

func sessionMessageHandler(m *conversation.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		var in conversation.Intake
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		reply, err := m.Accept(r.Context(), id, in)
		if err != nil {
			handleSessionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(reply))
	}
}

func listSlotsHandler(slots *slot.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseSlotFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		found, err := slots.FindSlots(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(found))
		for _, s := range found {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(repo booking.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := repo.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(coord *booking.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := coord.Cancel(r.Context(), id)
		if err != nil {
			handleCancelError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, conversation.ErrSessionTerminal):
		writeError(w, http.StatusConflict, "session_ended", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseSlotFilter(r *http.Request) (slot.Filter, error) {
	q := r.URL.Query()
	var f slot.Filter

	if v := q.Get("specialty"); v != "" {
		f.Specialty = &v
	}
	if v := q.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("doctor_id must be a valid UUID")
		}
		f.DoctorID = &id
	}
	if v := q.Get("location_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("location_id must be a valid UUID")
		}
		f.LocationID = &id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("from must be RFC3339")
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("to must be RFC3339")
		}
		f.To = t
	}
	if v := q.Get("min_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("min_minutes must be a non-negative integer")
		}
		f.MinDuration = time.Duration(n) * time.Minute
	}

	return f, nil
}
