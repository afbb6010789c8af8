package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(base BaseRepository) repository.ClinicRepository {
	return &clinicRepository{base}
}

const clinicColumns = `id, number, name, screen_number, password_hash, active, created_at, updated_at`

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	start := time.Now()
	query := `
		INSERT INTO clinics (
			id, number, name, screen_number, password_hash, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`
	clinic.Touch(time.Now())

	_, err := r.db.ExecContext(ctx, query,
		clinic.ID,
		clinic.Number,
		clinic.Name,
		clinic.ScreenNumber,
		clinic.PasswordHash,
		clinic.Active,
		clinic.CreatedAt,
		clinic.UpdatedAt,
	)
	err = mapError(err)
	r.observe("clinic_create", start, err)
	if err != nil {
		return fmt.Errorf("failed to create clinic: %w", err)
	}
	return nil
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1`

	var clinic model.Clinic
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", mapError(err))
	}
	return &clinic, nil
}

func (r *clinicRepository) GetByNumber(ctx context.Context, number int) (*model.Clinic, error) {
	start := time.Now()
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE number = $1`

	var clinic model.Clinic
	err := r.db.GetContext(ctx, &clinic, query, number)
	err = mapError(err)
	r.observe("clinic_get_by_number", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get clinic %d: %w", number, err)
	}
	return &clinic, nil
}

// Update leaves the password hash alone; see UpdatePassword.
func (r *clinicRepository) Update(ctx context.Context, clinic *model.Clinic) error {
	query := `
		UPDATE clinics
		SET number = $1, name = $2, screen_number = $3, active = $4, updated_at = $5
		WHERE id = $6
	`
	clinic.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		clinic.Number,
		clinic.Name,
		clinic.ScreenNumber,
		clinic.Active,
		clinic.UpdatedAt,
		clinic.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update clinic: %w", mapError(err))
	}
	return expectOne(result)
}

func (r *clinicRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	query := `UPDATE clinics SET password_hash = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update clinic password: %w", err)
	}
	return expectOne(result)
}

func (r *clinicRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM clinics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete clinic: %w", err)
	}
	return expectOne(result)
}

func (r *clinicRepository) List(ctx context.Context) ([]*model.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics ORDER BY number ASC`

	var clinics []*model.Clinic
	if err := r.db.SelectContext(ctx, &clinics, query); err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	return clinics, nil
}

func (r *clinicRepository) ListByScreen(ctx context.Context, screenNumber int) ([]*model.Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE screen_number = $1 AND active ORDER BY number ASC`

	var clinics []*model.Clinic
	if err := r.db.SelectContext(ctx, &clinics, query, screenNumber); err != nil {
		return nil, fmt.Errorf("failed to list clinics for screen %d: %w", screenNumber, err)
	}
	return clinics, nil
}
