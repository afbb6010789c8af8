package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type complaintRepository struct {
	BaseRepository
}

func NewComplaintRepository(base BaseRepository) repository.ComplaintRepository {
	return &complaintRepository{base}
}

func (r *complaintRepository) Create(ctx context.Context, complaint *model.Complaint) error {
	query := `
		INSERT INTO complaints (id, name, clinic_number, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	complaint.Touch(time.Now())

	_, err := r.db.ExecContext(ctx, query,
		complaint.ID,
		complaint.Name,
		complaint.ClinicNumber,
		complaint.Text,
		complaint.CreatedAt,
		complaint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create complaint: %w", err)
	}
	return nil
}

func (r *complaintRepository) List(ctx context.Context, page model.Pagination) ([]*model.Complaint, int, error) {
	page = page.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM complaints`); err != nil {
		return nil, 0, fmt.Errorf("failed to count complaints: %w", err)
	}

	query := `
		SELECT id, name, clinic_number, text, created_at, updated_at
		FROM complaints
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	var complaints []*model.Complaint
	if err := r.db.SelectContext(ctx, &complaints, query, page.PageSize, page.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list complaints: %w", err)
	}
	return complaints, total, nil
}

func (r *complaintRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM complaints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete complaint: %w", err)
	}
	return expectOne(result)
}
