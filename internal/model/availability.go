package model

import (
	"time"

	"github.com/google/uuid"
)

type AvailabilityStatus string

const (
	AvailabilityStatusAvailable AvailabilityStatus = "AVAILABLE"
	AvailabilityStatusBooked    AvailabilityStatus = "BOOKED"
	AvailabilityStatusBlocked   AvailabilityStatus = "BLOCKED"
)

// AvailabilityWindow is a doctor-declared recurring daily window. Only the
// time-of-day of StartTime/EndTime matters to slot computation; the window
// is projected onto each calendar day of the horizon.
type AvailabilityWindow struct {
	Base
	DoctorID  uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	StartTime time.Time          `db:"start_time" json:"start_time"`
	EndTime   time.Time          `db:"end_time" json:"end_time"`
	Status    AvailabilityStatus `db:"status" json:"status"`
}

type SetAvailabilityRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
}

// TimeSlot is a bookable half-open interval [Start, End).
type TimeSlot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Formatted string    `json:"formatted"`
}

// DaySlots groups a calendar day's free slots. Days with no free slots are
// still emitted so callers can render the full horizon.
type DaySlots struct {
	Date        string     `json:"date"`
	DisplayDate string     `json:"display_date"`
	Slots       []TimeSlot `json:"slots"`
}
