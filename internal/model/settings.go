package model

import "time"

const GeneralSettingsKey = "general"

// Settings is the center-wide configuration record.
type Settings struct {
	CenterName    string    `json:"centerName" db:"center_name"`
	AlertDuration int       `json:"alertDuration" db:"alert_duration"`
	SpeechSpeed   float64   `json:"speechSpeed" db:"speech_speed"`
	AudioPath     string    `json:"audioPath" db:"audio_path"`
	NewsTicker    string    `json:"newsTicker" db:"news_ticker"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

func DefaultSettings() Settings {
	return Settings{
		AlertDuration: 5,
		SpeechSpeed:   1,
		AudioPath:     "./audio/",
	}
}

// AlertDurationOrDefault returns the call notice duration.
func (s Settings) AlertDurationOrDefault() time.Duration {
	if s.AlertDuration <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.AlertDuration) * time.Second
}
