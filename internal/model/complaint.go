package model

// MaxComplaintLen is counted in runes.
const MaxComplaintLen = 140

const AnonymousName = "Anonymous"

type Complaint struct {
	Base
	Name         string `json:"name" db:"name"`
	ClinicNumber *int   `json:"clinicNumber,omitempty" db:"clinic_number"`
	Text         string `json:"text" db:"text"`
}
