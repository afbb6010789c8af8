package model

import "fmt"

type QueueStatus string

const (
	QueueStatusActive QueueStatus = "active"
	QueueStatusPaused QueueStatus = "paused"
)

func (s QueueStatus) Valid() bool {
	return s == QueueStatusActive || s == QueueStatusPaused
}

// QueueState is the broadcast record for one clinic. Timestamps are unix
// milliseconds assigned by the channel; LastCalled is nil until the first call
// and after a reset.
type QueueState struct {
	Current     int         `json:"current"`
	Status      QueueStatus `json:"status"`
	LastCalled  *int64      `json:"lastCalled"`
	LastUpdated int64       `json:"lastUpdated"`
}

// NewQueueState is the state of a clinic nobody has called for yet.
func NewQueueState() QueueState {
	return QueueState{Status: QueueStatusActive}
}

func (s QueueState) Validate() error {
	if s.Current < 0 {
		return fmt.Errorf("current must not be negative, got %d", s.Current)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid queue status %q", s.Status)
	}
	return nil
}

// ClinicState pairs a queue state with its clinic for fan-out.
type ClinicState struct {
	ClinicNumber int        `json:"clinicNumber"`
	State        QueueState `json:"state"`
}
