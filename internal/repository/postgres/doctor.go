package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

const doctorColumns = `id, name, specialty, clinic_number, photo_url, working_days, created_at, updated_at`

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	query := `
		INSERT INTO doctors (
			id, name, specialty, clinic_number, photo_url, working_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	doctor.Touch(time.Now())
	if doctor.WorkingDays == nil {
		doctor.WorkingDays = []string{}
	}

	_, err := r.db.ExecContext(ctx, query,
		doctor.ID,
		doctor.Name,
		doctor.Specialty,
		doctor.ClinicNumber,
		doctor.PhotoURL,
		doctor.WorkingDays,
		doctor.CreatedAt,
		doctor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create doctor: %w", mapError(err))
	}
	return nil
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var doctor model.Doctor
	err := r.db.GetContext(ctx, &doctor, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor: %w", mapError(err))
	}
	return &doctor, nil
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	query := `
		UPDATE doctors
		SET name = $1, specialty = $2, clinic_number = $3, photo_url = $4, working_days = $5, updated_at = $6
		WHERE id = $7
	`
	doctor.UpdatedAt = time.Now()
	if doctor.WorkingDays == nil {
		doctor.WorkingDays = []string{}
	}

	result, err := r.db.ExecContext(ctx, query,
		doctor.Name,
		doctor.Specialty,
		doctor.ClinicNumber,
		doctor.PhotoURL,
		doctor.WorkingDays,
		doctor.UpdatedAt,
		doctor.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update doctor: %w", err)
	}
	return expectOne(result)
}

func (r *doctorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete doctor: %w", err)
	}
	return expectOne(result)
}

func (r *doctorRepository) List(ctx context.Context, clinicNumbers []int) ([]*model.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors`
	var args []interface{}

	if len(clinicNumbers) > 0 {
		in, inArgs, err := sqlx.In(` WHERE clinic_number IN (?)`, clinicNumbers)
		if err != nil {
			return nil, fmt.Errorf("failed to build doctor filter: %w", err)
		}
		query += in
		args = inArgs
	}
	query = r.db.Rebind(query + ` ORDER BY clinic_number ASC, name ASC`)

	var doctors []*model.Doctor
	if err := r.db.SelectContext(ctx, &doctors, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}
