package model

import "time"

// CallRecord is a call event archived from the call log.
type CallRecord struct {
	StreamID     string    `json:"streamId" db:"stream_id"`
	ClinicNumber int       `json:"clinicNumber" db:"clinic_number"`
	ClientNumber int       `json:"clientNumber" db:"client_number"`
	ClientName   string    `json:"clientName" db:"client_name"`
	Type         CallType  `json:"type" db:"type"`
	FromClinic   int       `json:"fromClinic" db:"from_clinic"`
	ToClinic     int       `json:"toClinic" db:"to_clinic"`
	CalledAt     time.Time `json:"calledAt" db:"called_at"`
	ArchivedAt   time.Time `json:"archivedAt" db:"archived_at"`
}

func NewCallRecord(e CallEvent, archivedAt time.Time) CallRecord {
	return CallRecord{
		StreamID:     e.ID,
		ClinicNumber: e.ClinicNumber,
		ClientNumber: e.ClientNumber,
		ClientName:   e.ClientName,
		Type:         e.Type,
		FromClinic:   e.FromClinic,
		ToClinic:     e.ToClinic,
		CalledAt:     TimeOf(e.Timestamp),
		ArchivedAt:   archivedAt,
	}
}

// ClinicCallStats counts archived calls of one type for a clinic on a day.
type ClinicCallStats struct {
	ClinicNumber int      `json:"clinicNumber" db:"clinic_number"`
	Type         CallType `json:"type" db:"type"`
	Total        int      `json:"total" db:"total"`
	LastClient   int      `json:"lastClient" db:"last_client"`
}
