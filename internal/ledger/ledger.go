// Package ledger reads the derived state of tickets from their status histories.
// Every function here is pure and never mutates its input.
package ledger

import (
	"sort"

	"github.com/spec-kit/resource-queue/internal/domain"
)

// CurrentStatus returns the last entry of the ticket's history. A nil ticket or
// an empty history is reported as INITIALIZED.
func CurrentStatus(ticket *domain.Ticket) domain.StatusEntry {
	if ticket == nil {
		return domain.StatusEntry{StatusCode: domain.StatusInitialized}
	}
	if len(ticket.Statuses) == 0 {
		return domain.StatusEntry{StatusCode: domain.StatusInitialized, Timestamp: ticket.CreationDate}
	}
	return ticket.Statuses[len(ticket.Statuses)-1]
}

// QueuePosition returns the current queue position of the ticket, if it holds one.
func QueuePosition(ticket *domain.Ticket) (int, bool) {
	current := CurrentStatus(ticket)
	if !current.StatusCode.HoldsQueuePosition() || current.QueuePosition == nil || *current.QueuePosition <= 0 {
		return 0, false
	}
	return *current.QueuePosition, true
}

// IsLive reports whether the ticket has not been revoked.
func IsLive(ticket *domain.Ticket) bool {
	return ticket != nil && CurrentStatus(ticket).StatusCode != domain.StatusRevoked
}

// QueuePositions returns the sorted current positions of all queued or awaiting tickets.
func QueuePositions(tickets []domain.Ticket) []int {
	positions := make([]int, 0, len(tickets))
	for i := range tickets {
		if pos, ok := QueuePosition(&tickets[i]); ok {
			positions = append(positions, pos)
		}
	}
	sort.Ints(positions)
	return positions
}

// MaxQueuePosition returns the highest current position, or 0 when nobody is queued.
func MaxQueuePosition(tickets []domain.Ticket) int {
	positions := QueuePositions(tickets)
	if len(positions) == 0 {
		return 0
	}
	return positions[len(positions)-1]
}

// MinQueuePosition returns the lowest current position, or 1 when nobody is queued.
func MinQueuePosition(tickets []domain.Ticket) int {
	positions := QueuePositions(tickets)
	if len(positions) == 0 {
		return 1
	}
	return positions[0]
}

// ActiveCount counts tickets whose current status is ACTIVE.
func ActiveCount(tickets []domain.Ticket) int {
	count := 0
	for i := range tickets {
		if CurrentStatus(&tickets[i]).StatusCode == domain.StatusActive {
			count++
		}
	}
	return count
}

// LiveTicket returns the user's live ticket. The pointer aliases the slice.
func LiveTicket(tickets []domain.Ticket, userID string) *domain.Ticket {
	for i := len(tickets) - 1; i >= 0; i-- {
		if tickets[i].User.ID == userID && IsLive(&tickets[i]) {
			return &tickets[i]
		}
	}
	return nil
}

// TicketAtQueuePosition returns the ticket currently holding pos.
func TicketAtQueuePosition(tickets []domain.Ticket, pos int) *domain.Ticket {
	for i := range tickets {
		if p, ok := QueuePosition(&tickets[i]); ok && p == pos {
			return &tickets[i]
		}
	}
	return nil
}

// AwaitingTicket returns the ticket whose current status is AWAITING_CONFIRMATION.
func AwaitingTicket(tickets []domain.Ticket) *domain.Ticket {
	for i := range tickets {
		if CurrentStatus(&tickets[i]).StatusCode == domain.StatusAwaitingConfirmation {
			return &tickets[i]
		}
	}
	return nil
}

// TicketsInStatus returns the tickets whose current status is status.
func TicketsInStatus(tickets []domain.Ticket, status domain.StatusCode) []*domain.Ticket {
	var out []*domain.Ticket
	for i := range tickets {
		if CurrentStatus(&tickets[i]).StatusCode == status {
			out = append(out, &tickets[i])
		}
	}
	return out
}
