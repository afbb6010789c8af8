package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type screenRepository struct {
	BaseRepository
}

func NewScreenRepository(base BaseRepository) repository.ScreenRepository {
	return &screenRepository{base}
}

func (r *screenRepository) Create(ctx context.Context, screen *model.Screen) error {
	query := `
		INSERT INTO screens (id, number, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	screen.Touch(time.Now())

	_, err := r.db.ExecContext(ctx, query, screen.ID, screen.Number, screen.Name, screen.CreatedAt, screen.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", mapError(err))
	}
	return nil
}

func (r *screenRepository) Get(ctx context.Context, id uuid.UUID) (*model.Screen, error) {
	var screen model.Screen
	err := r.db.GetContext(ctx, &screen, `SELECT id, number, name, created_at, updated_at FROM screens WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get screen: %w", mapError(err))
	}
	return &screen, nil
}

func (r *screenRepository) GetByNumber(ctx context.Context, number int) (*model.Screen, error) {
	var screen model.Screen
	err := r.db.GetContext(ctx, &screen, `SELECT id, number, name, created_at, updated_at FROM screens WHERE number = $1`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get screen %d: %w", number, mapError(err))
	}
	return &screen, nil
}

func (r *screenRepository) Update(ctx context.Context, screen *model.Screen) error {
	screen.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE screens SET number = $1, name = $2, updated_at = $3 WHERE id = $4`,
		screen.Number, screen.Name, screen.UpdatedAt, screen.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update screen: %w", mapError(err))
	}
	return expectOne(result)
}

func (r *screenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM screens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete screen: %w", err)
	}
	return expectOne(result)
}

func (r *screenRepository) List(ctx context.Context) ([]*model.Screen, error) {
	var screens []*model.Screen
	err := r.db.SelectContext(ctx, &screens, `SELECT id, number, name, created_at, updated_at FROM screens ORDER BY number ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list screens: %w", err)
	}
	return screens, nil
}
