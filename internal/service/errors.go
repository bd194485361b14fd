package service

import (
	"errors"

	"github.com/spec-kit/resource-queue/internal/guard"
	"github.com/spec-kit/resource-queue/internal/repository"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

var (
	ErrIllegalTransition = errors.New("transition not allowed from the current status")
	ErrNoLiveTicket      = errors.New("user holds no live ticket on the resource")
	ErrInsufficientRole  = errors.New("insufficient role on the resource")
	ErrCapacityExceeded  = errors.New("resource has no free slot")
	ErrNotRequestable    = errors.New("status is assigned by the system and cannot be requested")
	ErrStaleRelease      = errors.New("ticket is no longer in the expected status")
)

// toDomainError maps internal errors to public DomainErrors. subject names the
// entity used in NOT_FOUND messages.
func toDomainError(err error, subject string) error {
	if err == nil {
		return nil
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return de
	}
	switch {
	case errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrNoLiveTicket),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrNotRequestable),
		errors.Is(err, ErrStaleRelease):
		return apperrors.NewGuardRejection(rootMessage(err), err)
	case errors.Is(err, ErrInsufficientRole), errors.Is(err, guard.ErrTargetUserRequired):
		return apperrors.NewForbidden(rootMessage(err))
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(subject, nil)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict("concurrent modification, retry the request", nil)
	}
	return apperrors.NewInternalError(err)
}

// rootMessage returns the text of the first known sentinel in err's chain.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		ErrIllegalTransition, ErrNoLiveTicket, ErrCapacityExceeded, ErrNotRequestable,
		ErrStaleRelease, ErrInsufficientRole, guard.ErrTargetUserRequired,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
