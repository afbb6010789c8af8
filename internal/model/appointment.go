package model

import (
	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Open reports whether the appointment still holds its slot.
func (s AppointmentStatus) Open() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusConfirmed
}

type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
)

// Appointment dates are YYYY-MM-DD and times HH:MM, both local to the center.
type Appointment struct {
	Base
	PatientName  string            `json:"patientName" db:"patient_name"`
	NationalID   string            `json:"nationalId" db:"national_id"`
	Phone        string            `json:"phone" db:"phone"`
	Email        string            `json:"email,omitempty" db:"email"`
	ClinicNumber int               `json:"clinicNumber" db:"clinic_number"`
	DoctorID     *uuid.UUID        `json:"doctorId,omitempty" db:"doctor_id"`
	Date         string            `json:"date" db:"date"`
	Time         string            `json:"time" db:"time"`
	Shift        Shift             `json:"shift" db:"shift"`
	VisitReason  string            `json:"visitReason,omitempty" db:"visit_reason"`
	Status       AppointmentStatus `json:"status" db:"status"`
}

type AppointmentFilters struct {
	Date         string
	ClinicNumber int
	Status       AppointmentStatus
	NationalID   string
}

// Slot is a booked time on a date and shift.
type Slot struct {
	ClinicNumber int    `json:"clinicNumber" db:"clinic_number"`
	Time         string `json:"time" db:"time"`
}
