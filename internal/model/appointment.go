package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "SCHEDULED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// Appointment is a booked consultation. Status transitions are monotonic:
// once SCHEDULED is left there is no way back. CreditCost records the amount
// charged at booking time so a later cancellation reverses exactly what was
// charged, regardless of what the current cost constant is.
type Appointment struct {
	Base
	PatientID          uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	StartTime          time.Time         `db:"start_time" json:"start_time"`
	EndTime            time.Time         `db:"end_time" json:"end_time"`
	Status             AppointmentStatus `db:"status" json:"status"`
	Notes              *string           `db:"notes" json:"notes,omitempty"`
	PatientDescription *string           `db:"patient_description" json:"patient_description,omitempty"`
	VideoSessionID     string            `db:"video_session_id" json:"video_session_id"`
	CreditCost         int               `db:"credit_cost" json:"credit_cost"`
}

// Overlaps applies the half-open interval rule: touching edges do not
// overlap, so back-to-back appointments are fine.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndTime) && end.After(a.StartTime)
}

type BookAppointmentRequest struct {
	DoctorID    uuid.UUID `json:"doctor_id" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required,notpast"`
	EndTime     time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
	Description *string   `json:"description"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes" binding:"required,max=2000"`
}

type VideoTokenResponse struct {
	VideoSessionID string `json:"video_session_id"`
	Token          string `json:"token"`
}

type AppointmentFilters struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
}
