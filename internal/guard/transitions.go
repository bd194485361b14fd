package guard

import "github.com/spec-kit/resource-queue/internal/domain"

var allowedTransitions = map[domain.StatusCode][]domain.StatusCode{
	domain.StatusInitialized:          {domain.StatusRequesting, domain.StatusRevoked},
	domain.StatusRequesting:           {domain.StatusQueued, domain.StatusActive},
	domain.StatusQueued:               {domain.StatusAwaitingConfirmation, domain.StatusInactive, domain.StatusRevoked},
	domain.StatusAwaitingConfirmation: {domain.StatusActive, domain.StatusInactive},
	domain.StatusActive:               {domain.StatusInactive},
	domain.StatusInactive:             {domain.StatusRequesting, domain.StatusQueued, domain.StatusRevoked},
	domain.StatusRevoked:              {},
}

// IsValidTransition reports whether next may follow current in a ticket history.
func IsValidTransition(current, next domain.StatusCode) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
