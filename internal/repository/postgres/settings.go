package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type settingsRepository struct {
	BaseRepository
}

func NewSettingsRepository(base BaseRepository) repository.SettingsRepository {
	return &settingsRepository{base}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (*model.Settings, error) {
	query := `
		SELECT center_name, alert_duration, speech_speed, audio_path, news_ticker, updated_at
		FROM settings
		WHERE key = $1
	`
	var settings model.Settings
	if err := r.db.GetContext(ctx, &settings, query, key); err != nil {
		return nil, fmt.Errorf("failed to get settings %q: %w", key, mapError(err))
	}
	return &settings, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, key string, settings *model.Settings) error {
	query := `
		INSERT INTO settings (key, center_name, alert_duration, speech_speed, audio_path, news_ticker, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			center_name = EXCLUDED.center_name,
			alert_duration = EXCLUDED.alert_duration,
			speech_speed = EXCLUDED.speech_speed,
			audio_path = EXCLUDED.audio_path,
			news_ticker = EXCLUDED.news_ticker,
			updated_at = EXCLUDED.updated_at
	`
	settings.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		key,
		settings.CenterName,
		settings.AlertDuration,
		settings.SpeechSpeed,
		settings.AudioPath,
		settings.NewsTicker,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings %q: %w", key, err)
	}
	return nil
}
