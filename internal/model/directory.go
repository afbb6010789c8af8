package model

import (
	"github.com/lib/pq"
)

type Doctor struct {
	Base
	Name         string         `json:"name" db:"name"`
	Specialty    string         `json:"specialty" db:"specialty"`
	ClinicNumber int            `json:"clinicNumber" db:"clinic_number"`
	PhotoURL     string         `json:"photoUrl,omitempty" db:"photo_url"`
	WorkingDays  pq.StringArray `json:"workingDays" db:"working_days"`
}

// Screen groups the clinics shown on one waiting-room display.
type Screen struct {
	Base
	Number int    `json:"number" db:"number"`
	Name   string `json:"name" db:"name"`
}

type VideoLink struct {
	Base
	Title     string `json:"title" db:"title"`
	URL       string `json:"url" db:"url"`
	Active    bool   `json:"active" db:"active"`
	SortOrder int    `json:"sortOrder" db:"sort_order"`
}

// ScreenView is everything a display needs to render one screen.
type ScreenView struct {
	Screen  Screen          `json:"screen"`
	Clinics []ClinicSummary `json:"clinics"`
	Doctors []*Doctor       `json:"doctors"`
	Videos  []*VideoLink    `json:"videos"`
}
