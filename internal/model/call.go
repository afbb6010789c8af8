package model

import (
	"errors"
	"strings"
)

type CallType string

const (
	CallTypeNormal   CallType = "normal"
	CallTypeSpecific CallType = "specific"
	CallTypeByName   CallType = "byName"
	CallTypeSkip     CallType = "skip"
	CallTypeTransfer CallType = "transfer"
)

func (t CallType) Valid() bool {
	switch t {
	case CallTypeNormal, CallTypeSpecific, CallTypeByName, CallTypeSkip, CallTypeTransfer:
		return true
	}
	return false
}

// CallEvent is an immutable entry in the call log. ID and Timestamp are assigned
// by the channel on append.
type CallEvent struct {
	ID           string   `json:"id,omitempty"`
	ClientNumber int      `json:"clientNumber,omitempty"`
	ClientName   string   `json:"clientName,omitempty"`
	ClinicNumber int      `json:"clinicNumber"`
	ClinicName   string   `json:"clinicName,omitempty"`
	Type         CallType `json:"type"`
	FromClinic   int      `json:"fromClinic,omitempty"`
	ToClinic     int      `json:"toClinic,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

var ErrInvalidCallEvent = errors.New("invalid call event")

func (e CallEvent) Validate() error {
	if e.ClinicNumber <= 0 {
		return errors.Join(ErrInvalidCallEvent, errors.New("clinicNumber is required"))
	}
	switch e.Type {
	case CallTypeNormal, CallTypeSpecific:
		if e.ClientNumber <= 0 {
			return errors.Join(ErrInvalidCallEvent, errors.New("clientNumber is required"))
		}
	case CallTypeByName:
		if strings.TrimSpace(e.ClientName) == "" {
			return errors.Join(ErrInvalidCallEvent, errors.New("clientName is required"))
		}
	case CallTypeTransfer:
		if e.ClientNumber <= 0 || e.ToClinic <= 0 {
			return errors.Join(ErrInvalidCallEvent, errors.New("transfer needs clientNumber and toClinic"))
		}
	case CallTypeSkip:
	default:
		return errors.Join(ErrInvalidCallEvent, errors.New("unknown type "+string(e.Type)))
	}
	return nil
}

// AnnounceClinic is the clinic the client is sent to.
func (e CallEvent) AnnounceClinic() int {
	if e.Type == CallTypeTransfer && e.ToClinic > 0 {
		return e.ToClinic
	}
	return e.ClinicNumber
}

// Involves reports whether a viewer of clinic should see the event.
func (e CallEvent) Involves(clinic int) bool {
	return e.ClinicNumber == clinic || e.ToClinic == clinic || e.FromClinic == clinic
}
