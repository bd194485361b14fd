package service

import (
	"time"

	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/ledger"
)

// TicketView is one user's ticket as shown on a resource card.
type TicketView struct {
	ID              string            `json:"id"`
	Role            domain.LocalRole  `json:"role"`
	StatusCode      domain.StatusCode `json:"statusCode"`
	QueuePosition   *int              `json:"queuePosition,omitempty"`
	StatusTimestamp time.Time         `json:"statusTimestamp"`
	CreationDate    time.Time         `json:"creationDate"`
}

// ResourceCard is a resource from the point of view of one user.
type ResourceCard struct {
	ResourceID           string         `json:"resourceId"`
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	CreatedBy            domain.Creator `json:"createdBy"`
	MaxActiveTickets     int            `json:"maxActiveTickets"`
	ActiveUserCount      int            `json:"activeUserCount"`
	QueueLength          int            `json:"queueLength"`
	CreationDate         time.Time      `json:"creationDate"`
	LastModificationDate time.Time      `json:"lastModificationDate"`
	Ticket               *TicketView    `json:"ticket,omitempty"`
}

// BuildResourceCard renders the card of resource for userID. The ticket shown is
// the user's live ticket, or their latest revoked one.
func BuildResourceCard(resource *domain.Resource, userID string) *ResourceCard {
	card := &ResourceCard{
		ResourceID:           resource.ID,
		Name:                 resource.Name,
		Description:          resource.Description,
		CreatedBy:            resource.CreatedBy,
		MaxActiveTickets:     resource.MaxActiveTickets,
		ActiveUserCount:      resource.ActiveUserCount,
		QueueLength:          len(ledger.QueuePositions(resource.Tickets)),
		CreationDate:         resource.CreationDate,
		LastModificationDate: resource.LastModificationDate,
	}
	ticket := userTicket(resource, userID)
	if ticket == nil {
		return card
	}
	current := ledger.CurrentStatus(ticket)
	view := &TicketView{
		ID:              ticket.ID,
		Role:            ticket.User.Role,
		StatusCode:      current.StatusCode,
		StatusTimestamp: current.Timestamp,
		CreationDate:    ticket.CreationDate,
	}
	if pos, ok := ledger.QueuePosition(ticket); ok {
		view.QueuePosition = domain.Position(pos)
	}
	card.Ticket = view
	return card
}

func userTicket(resource *domain.Resource, userID string) *domain.Ticket {
	if live := ledger.LiveTicket(resource.Tickets, userID); live != nil {
		return live
	}
	for i := len(resource.Tickets) - 1; i >= 0; i-- {
		if resource.Tickets[i].User.ID == userID {
			return &resource.Tickets[i]
		}
	}
	return nil
}
