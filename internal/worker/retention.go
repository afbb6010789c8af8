package worker

import (
	"context"
	"fmt"
	"time"
)

// Cleanup trims channel streams older than the retention window and deletes
// call history older than the history window. Calls that have not been
// archived yet are never trimmed: the cutoff stops at the archive watermark.
func (a *Archiver) Cleanup(ctx context.Context) error {
	now := a.now()

	cutoff := now.AddDate(0, 0, -a.config.RetentionDays)
	if mark := a.watermark(); mark.IsZero() {
		cutoff = time.Time{}
	} else if mark.Before(cutoff) {
		cutoff = mark
	}

	if !cutoff.IsZero() {
		trimmed, err := a.ch.Trim(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to trim channel streams: %w", err)
		}
		a.metrics.StreamEntriesTrimmed.Add(float64(trimmed))
		a.logger.Info().Int64("entries", trimmed).Time("before", cutoff).Msg("trimmed channel streams")
	}

	if a.config.HistoryDays > 0 {
		before := now.AddDate(0, 0, -a.config.HistoryDays)
		rows, err := a.history.DeleteBefore(ctx, before)
		if err != nil {
			a.metrics.DatabaseOperations.WithLabelValues("delete_call_history", "error").Inc()
			return fmt.Errorf("failed to clean up call history: %w", err)
		}
		a.metrics.DatabaseOperations.WithLabelValues("delete_call_history", "success").Inc()
		a.logger.Info().Int64("rows", rows).Time("before", before).Msg("cleaned up call history")
	}
	return nil
}
