package dto

import (
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/guard"
	"github.com/spec-kit/resource-queue/internal/service"
)

// ResourceUserRequest invites one user.
type ResourceUserRequest struct {
	UserID string           `json:"userId"`
	Role   domain.LocalRole `json:"role"`
}

// CreateResourceRequest payload.
type CreateResourceRequest struct {
	Name             string                `json:"name"`
	Description      string                `json:"description"`
	MaxActiveTickets int                   `json:"maxActiveTickets"`
	Users            []ResourceUserRequest `json:"users"`
}

// AddResourceUsersRequest payload.
type AddResourceUsersRequest struct {
	Users []ResourceUserRequest `json:"users"`
}

// RemoveResourceUsersRequest payload.
type RemoveResourceUsersRequest struct {
	UserIDs []string `json:"userIds"`
}

// TransitionRequest payload. UserID names the target user for admin requests.
type TransitionRequest struct {
	TargetStatus domain.StatusCode `json:"targetStatus"`
	UserID       *string           `json:"userId"`
}

// TransitionDecisionResponse is a read-only guard decision.
type TransitionDecisionResponse struct {
	Allowed            bool              `json:"allowed"`
	TicketID           string            `json:"ticketId,omitempty"`
	CurrentStatus      domain.StatusCode `json:"currentStatus,omitempty"`
	QueuePosition      *int              `json:"queuePosition,omitempty"`
	ActiveUserCount    int               `json:"activeUserCount"`
	MaxActiveTickets   int               `json:"maxActiveTickets"`
	FirstQueuePosition int               `json:"firstQueuePosition"`
	LastQueuePosition  int               `json:"lastQueuePosition"`
	Reason             string            `json:"reason,omitempty"`
}

// ReleaseResponse is one forced release.
type ReleaseResponse struct {
	UserID   string `json:"userId"`
	Released bool   `json:"released"`
}

// CleanupResponse summarises the removal of users from one resource.
type CleanupResponse struct {
	ResourceID string            `json:"resourceId"`
	Failed     bool              `json:"failed"`
	Releases   []ReleaseResponse `json:"releases"`
}

// ToCreateResourceInput maps the request to service input.
func (r CreateResourceRequest) ToCreateResourceInput() service.CreateResourceInput {
	return service.CreateResourceInput{
		Name:             r.Name,
		Description:      r.Description,
		MaxActiveTickets: r.MaxActiveTickets,
		Users:            toResourceUsers(r.Users),
	}
}

func toResourceUsers(in []ResourceUserRequest) []service.ResourceUserInput {
	out := make([]service.ResourceUserInput, 0, len(in))
	for _, u := range in {
		out = append(out, service.ResourceUserInput{UserID: u.UserID, Role: u.Role})
	}
	return out
}

// ToResourceUsers maps the request to service input.
func (r AddResourceUsersRequest) ToResourceUsers() []service.ResourceUserInput {
	return toResourceUsers(r.Users)
}

// NewTransitionDecisionResponse renders a guard decision.
func NewTransitionDecisionResponse(d guard.Decision) TransitionDecisionResponse {
	resp := TransitionDecisionResponse{
		Allowed:            d.Allowed,
		TicketID:           d.TicketID,
		ActiveUserCount:    d.ActiveUserCount,
		MaxActiveTickets:   d.MaxActiveTickets,
		FirstQueuePosition: d.Bounds.First,
		LastQueuePosition:  d.Bounds.Last,
		Reason:             d.Reason,
	}
	if d.HasTicket {
		resp.CurrentStatus = d.Current.StatusCode
		resp.QueuePosition = d.Current.QueuePosition
	}
	return resp
}

// NewCleanupResponse renders a cleanup outcome. Failure causes stay in logs.
func NewCleanupResponse(o service.CleanupOutcome) CleanupResponse {
	resp := CleanupResponse{ResourceID: o.ResourceID, Failed: o.Failed(), Releases: []ReleaseResponse{}}
	for _, r := range o.Releases {
		resp.Releases = append(resp.Releases, ReleaseResponse{UserID: r.UserID, Released: r.Released})
	}
	return resp
}
