package model

// Clinic is a service counter with its own queue counter. Number is unique and is
// what callers log in with.
type Clinic struct {
	Base
	Number       int    `json:"number" db:"number"`
	Name         string `json:"name" db:"name"`
	ScreenNumber int    `json:"screenNumber" db:"screen_number"`
	PasswordHash string `json:"-" db:"password_hash"`
	Active       bool   `json:"active" db:"active"`
}

// ClinicSummary is the public projection of a clinic.
type ClinicSummary struct {
	Number       int    `json:"number"`
	Name         string `json:"name"`
	ScreenNumber int    `json:"screenNumber"`
}

func (c *Clinic) Summary() ClinicSummary {
	return ClinicSummary{
		Number:       c.Number,
		Name:         c.Name,
		ScreenNumber: c.ScreenNumber,
	}
}
