package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduling-agent/internal/booking"
	"github.com/clinicflow/scheduling-agent/internal/conversation"
	"github.com/clinicflow/scheduling-agent/internal/slot"
)

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorName      string    `json:"doctor_name"`
	Specialty       string    `json:"specialty"`
	LocationName    string    `json:"location_name"`
	StartTime       time.Time `json:"start_time"`
	CapacityMinutes int       `json:"capacity_minutes"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	SlotID          uuid.UUID `json:"slot_id"`
	DoctorName      string    `json:"doctor_name"`
	LocationName    string    `json:"location_name"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

type SessionResponse struct {
	SessionID   uuid.UUID            `json:"session_id"`
	Stage       string               `json:"stage"`
	Prompt      string               `json:"prompt"`
	Slots       []SlotResponse       `json:"slots,omitempty"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s slot.Slot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		DoctorName:      s.DoctorName,
		Specialty:       s.Specialty,
		LocationName:    s.LocationName,
		StartTime:       s.StartTime,
		CapacityMinutes: int(s.Capacity.Minutes()),
	}
}

func toAppointmentResponse(a *booking.Appointment) *AppointmentResponse {
	if a == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		SlotID:          a.SlotID,
		DoctorName:      a.DoctorName,
		LocationName:    a.LocationName,
		StartTime:       a.StartTime,
		DurationMinutes: int(a.Duration.Minutes()),
		Status:          string(a.Status),
	}
}

func toSessionResponse(r conversation.Reply) SessionResponse {
	resp := SessionResponse{
		SessionID:   r.SessionID,
		Stage:       string(r.Stage),
		Prompt:      r.Prompt,
		Appointment: toAppointmentResponse(r.Appointment),
	}
	for _, s := range r.Offered {
		resp.Slots = append(resp.Slots, toSlotResponse(s))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
