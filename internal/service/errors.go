// Package service holds helpers shared by the domain services.
package service

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/clinic-queue/internal/repository"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

// RepoError converts repository sentinels into API errors and wraps
// everything else as "failed to <action> <resource>".
func RepoError(resource, action string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.Conflict(resource+" already exists", err)
	default:
		return fmt.Errorf("failed to %s %s: %w", action, resource, err)
	}
}
