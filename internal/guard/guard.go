// Package guard decides whether a user may move their ticket on a resource to a
// target status, and answers role questions about users and resources.
package guard

import (
	"context"
	"errors"

	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/ledger"
)

// ErrTargetUserRequired is returned when a global admin acts without naming a target user.
var ErrTargetUserRequired = errors.New("target user id is required for admin requests")

// Bounds holds the lowest and highest current queue positions of a resource.
type Bounds struct {
	First int
	Last  int
}

// Decision is the outcome of a transition check together with the snapshot it was computed from.
type Decision struct {
	Allowed          bool
	HasTicket        bool
	TicketID         string
	Role             domain.LocalRole
	Current          domain.StatusEntry
	ActiveUserCount  int
	MaxActiveTickets int
	Bounds           Bounds
	// Reason explains a refusal made on top of the transition table.
	Reason           string
}

// Evaluate checks the transition of the user's live ticket to target. It does not mutate resource.
func Evaluate(resource *domain.Resource, userID string, target domain.StatusCode) Decision {
	decision := Decision{
		ActiveUserCount:  resource.ActiveUserCount,
		MaxActiveTickets: resource.MaxActiveTickets,
		Bounds: Bounds{
			First: ledger.MinQueuePosition(resource.Tickets),
			Last:  ledger.MaxQueuePosition(resource.Tickets),
		},
	}
	ticket := ledger.LiveTicket(resource.Tickets, userID)
	if ticket == nil {
		return decision
	}
	decision.HasTicket = true
	decision.TicketID = ticket.ID
	decision.Role = ticket.User.Role
	decision.Current = ledger.CurrentStatus(ticket)
	decision.Allowed = IsValidTransition(decision.Current.StatusCode, target)
	return decision
}

// HasRole reports whether the user holds a live ticket with the given local role.
func HasRole(resource *domain.Resource, userID string, role domain.LocalRole) bool {
	ticket := ledger.LiveTicket(resource.Tickets, userID)
	return ticket != nil && ticket.User.Role == role
}

// HasGlobalAdminAccess reports whether the user is an application administrator.
func HasGlobalAdminAccess(user *domain.User) bool {
	return user != nil && user.GlobalRole == domain.GlobalRoleAdmin
}

// TargetUserID resolves whose ticket an operation acts on. Admins must name a
// target; everybody else always acts on themselves.
func TargetUserID(actor *domain.User, target *string) (string, error) {
	if HasGlobalAdminAccess(actor) {
		if target == nil || *target == "" {
			return "", ErrTargetUserRequired
		}
		return *target, nil
	}
	return actor.ID, nil
}

// ResourceReader loads resources by id.
type ResourceReader interface {
	GetByID(ctx context.Context, id string) (*domain.Resource, error)
}

// Guard runs checks against the current stored state of a resource.
type Guard struct {
	resources ResourceReader
}

// New constructs a Guard reading from resources.
func New(resources ResourceReader) *Guard {
	return &Guard{resources: resources}
}

// CanTransition loads the resource and evaluates the transition.
func (g *Guard) CanTransition(ctx context.Context, userID, resourceID string, target domain.StatusCode) (Decision, error) {
	resource, err := g.resources.GetByID(ctx, resourceID)
	if err != nil {
		return Decision{}, err
	}
	return Evaluate(resource, userID, target), nil
}

// HasRole loads the resource and checks the user's local role on it.
func (g *Guard) HasRole(ctx context.Context, userID, resourceID string, role domain.LocalRole) (bool, error) {
	resource, err := g.resources.GetByID(ctx, resourceID)
	if err != nil {
		return false, err
	}
	return HasRole(resource, userID, role), nil
}
