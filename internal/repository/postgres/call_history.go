package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type callHistoryRepository struct {
	BaseRepository
}

func NewCallHistoryRepository(base BaseRepository) repository.CallHistoryRepository {
	return &callHistoryRepository{base}
}

// splitStreamID splits "<ms>-<seq>" so archived entries sort the way the log did.
func splitStreamID(id string) (int64, int64, error) {
	msPart, seqPart, _ := strings.Cut(id, "-")
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	var seq int64
	if seqPart != "" {
		if seq, err = strconv.ParseInt(seqPart, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid stream id %q: %w", id, err)
		}
	}
	return ms, seq, nil
}

func (r *callHistoryRepository) InsertBatch(ctx context.Context, records []model.CallRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	start := time.Now()

	query := `
		INSERT INTO call_history (
			stream_id, stream_ms, stream_seq, clinic_number, client_number, client_name,
			type, from_clinic, to_clinic, called_at, archived_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (stream_id) DO NOTHING
	`

	var inserted int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			ms, seq, err := splitStreamID(rec.StreamID)
			if err != nil {
				return err
			}
			result, err := stmt.ExecContext(ctx,
				rec.StreamID, ms, seq,
				rec.ClinicNumber, rec.ClientNumber, rec.ClientName,
				rec.Type, rec.FromClinic, rec.ToClinic,
				rec.CalledAt, rec.ArchivedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to archive call %s: %w", rec.StreamID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += n
		}
		return nil
	})
	r.observe("call_history_insert", start, err)
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// LastStreamID returns "" when nothing has been archived yet.
func (r *callHistoryRepository) LastStreamID(ctx context.Context) (string, error) {
	var ids []string
	query := `SELECT stream_id FROM call_history ORDER BY stream_ms DESC, stream_seq DESC LIMIT 1`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return "", fmt.Errorf("failed to get last archived call: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (r *callHistoryRepository) DailyStats(ctx context.Context, day time.Time) ([]model.ClinicCallStats, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	query := `
		SELECT clinic_number, type, COUNT(*) AS total, COALESCE(MAX(client_number), 0) AS last_client
		FROM call_history
		WHERE called_at >= $1 AND called_at < $2
		GROUP BY clinic_number, type
		ORDER BY clinic_number ASC, type ASC
	`
	var stats []model.ClinicCallStats
	if err := r.db.SelectContext(ctx, &stats, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to compute call stats: %w", err)
	}
	return stats, nil
}

func (r *callHistoryRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM call_history WHERE called_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete call history: %w", err)
	}
	return result.RowsAffected()
}
