package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `id, patient_name, national_id, phone, email, clinic_number, doctor_id,
	date, time, shift, visit_reason, status, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	start := time.Now()
	query := `
		INSERT INTO appointments (
			id, patient_name, national_id, phone, email, clinic_number, doctor_id,
			date, time, shift, visit_reason, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	appointment.Touch(start)

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientName,
		appointment.NationalID,
		appointment.Phone,
		appointment.Email,
		appointment.ClinicNumber,
		appointment.DoctorID,
		appointment.Date,
		appointment.Time,
		appointment.Shift,
		appointment.VisitReason,
		appointment.Status,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	err = mapError(err)
	r.observe("appointment_create", start, err)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", mapError(err))
	}
	return expectOne(result)
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	var args []interface{}
	argCount := 1

	if filters != nil {
		if filters.Date != "" {
			query += fmt.Sprintf(" AND date = $%d", argCount)
			args = append(args, filters.Date)
			argCount++
		}
		if filters.ClinicNumber > 0 {
			query += fmt.Sprintf(" AND clinic_number = $%d", argCount)
			args = append(args, filters.ClinicNumber)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if filters.NationalID != "" {
			query += fmt.Sprintf(" AND national_id = $%d", argCount)
			args = append(args, filters.NationalID)
		}
	}

	query += " ORDER BY date ASC, time ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) HasOpen(ctx context.Context, nationalID, date string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE national_id = $1 AND date = $2 AND status IN ('pending', 'confirmed')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, nationalID, date); err != nil {
		return false, fmt.Errorf("failed to check open appointments: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) SlotTaken(ctx context.Context, clinicNumber int, date, slot string, shift model.Shift) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE clinic_number = $1 AND date = $2 AND time = $3 AND shift = $4
			AND status IN ('pending', 'confirmed')
		)
	`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, clinicNumber, date, slot, shift); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return taken, nil
}

func (r *appointmentRepository) BookedSlots(ctx context.Context, clinicNumber int, date string, shift model.Shift) ([]model.Slot, error) {
	query := `
		SELECT clinic_number, time
		FROM appointments
		WHERE clinic_number = $1 AND date = $2 AND shift = $3
		AND status IN ('pending', 'confirmed')
		ORDER BY time ASC
	`
	var slots []model.Slot
	if err := r.db.SelectContext(ctx, &slots, query, clinicNumber, date, shift); err != nil {
		return nil, fmt.Errorf("failed to list booked slots: %w", err)
	}
	return slots, nil
}
