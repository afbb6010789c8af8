package model

import "errors"

type AnnouncementType string

const (
	AnnouncementEmergency          AnnouncementType = "emergency"
	AnnouncementText               AnnouncementType = "text"
	AnnouncementAudio              AnnouncementType = "audio"
	AnnouncementDoctorNotification AnnouncementType = "doctorNotification"
)

// MaxAudioDataLen bounds an inline recorded clip (base64 data URL).
const MaxAudioDataLen = 2 << 20

// Announcement is a broadcast-wide entry, shown on every viewer regardless of clinic.
type Announcement struct {
	ID           string           `json:"id,omitempty"`
	Type         AnnouncementType `json:"type"`
	Message      string           `json:"message,omitempty"`
	AudioData    string           `json:"audioData,omitempty"`
	ClinicNumber int              `json:"clinicNumber,omitempty"`
	ClinicName   string           `json:"clinicName,omitempty"`
	Timestamp    int64            `json:"timestamp"`
}

var ErrInvalidAnnouncement = errors.New("invalid announcement")

func (a Announcement) Validate() error {
	switch a.Type {
	case AnnouncementEmergency, AnnouncementText, AnnouncementDoctorNotification:
		if a.Message == "" {
			return errors.Join(ErrInvalidAnnouncement, errors.New("message is required"))
		}
	case AnnouncementAudio:
		if a.AudioData == "" {
			return errors.Join(ErrInvalidAnnouncement, errors.New("audioData is required"))
		}
		if len(a.AudioData) > MaxAudioDataLen {
			return errors.Join(ErrInvalidAnnouncement, errors.New("audioData too large"))
		}
	default:
		return errors.Join(ErrInvalidAnnouncement, errors.New("unknown type "+string(a.Type)))
	}
	return nil
}

type VideoAction string

const (
	VideoPlay  VideoAction = "play"
	VideoPause VideoAction = "pause"
	VideoStop  VideoAction = "stop"
	VideoNext  VideoAction = "next"
)

func (a VideoAction) Valid() bool {
	switch a {
	case VideoPlay, VideoPause, VideoStop, VideoNext:
		return true
	}
	return false
}

// VideoControl is a playlist command sent to every display.
type VideoControl struct {
	ID        string      `json:"id,omitempty"`
	Action    VideoAction `json:"action"`
	Timestamp int64       `json:"timestamp"`
}
