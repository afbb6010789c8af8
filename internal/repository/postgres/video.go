package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type videoLinkRepository struct {
	BaseRepository
}

func NewVideoLinkRepository(base BaseRepository) repository.VideoLinkRepository {
	return &videoLinkRepository{base}
}

const videoColumns = `id, title, url, active, sort_order, created_at, updated_at`

func (r *videoLinkRepository) Create(ctx context.Context, link *model.VideoLink) error {
	query := `
		INSERT INTO video_links (id, title, url, active, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	link.Touch(time.Now())

	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.Title, link.URL, link.Active, link.SortOrder, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create video link: %w", err)
	}
	return nil
}

func (r *videoLinkRepository) Get(ctx context.Context, id uuid.UUID) (*model.VideoLink, error) {
	var link model.VideoLink
	err := r.db.GetContext(ctx, &link, `SELECT `+videoColumns+` FROM video_links WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get video link: %w", mapError(err))
	}
	return &link, nil
}

func (r *videoLinkRepository) Update(ctx context.Context, link *model.VideoLink) error {
	link.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx,
		`UPDATE video_links SET title = $1, url = $2, active = $3, sort_order = $4, updated_at = $5 WHERE id = $6`,
		link.Title, link.URL, link.Active, link.SortOrder, link.UpdatedAt, link.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update video link: %w", err)
	}
	return expectOne(result)
}

func (r *videoLinkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM video_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video link: %w", err)
	}
	return expectOne(result)
}

func (r *videoLinkRepository) List(ctx context.Context, activeOnly bool) ([]*model.VideoLink, error) {
	query := `SELECT ` + videoColumns + ` FROM video_links`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY sort_order ASC, created_at ASC`

	var links []*model.VideoLink
	if err := r.db.SelectContext(ctx, &links, query); err != nil {
		return nil, fmt.Errorf("failed to list video links: %w", err)
	}
	return links, nil
}
