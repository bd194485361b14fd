// Package queue applies ordered mutations to a resource's ticket queue. Callers
// load the resource inside a transaction, mutate it here and save it back.
package queue

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/ledger"
)

var (
	// ErrTicketNotFound is returned when the ticket id is not part of the resource.
	ErrTicketNotFound = errors.New("ticket not found on resource")
	// ErrQueueFrontOccupied is returned by ForwardQueue while a ticket still holds position 1.
	ErrQueueFrontOccupied = errors.New("queue front is still occupied")
)

// AppendStatus pushes entry onto the ticket's history and keeps ActiveUserCount in
// step with transitions into and out of ACTIVE.
func AppendStatus(resource *domain.Resource, ticketID string, entry domain.StatusEntry) error {
	ticket := resource.Ticket(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	previous := ledger.CurrentStatus(ticket).StatusCode
	if !entry.StatusCode.HoldsQueuePosition() {
		entry.QueuePosition = nil
	}
	ticket.Statuses = append(ticket.Statuses, entry)

	switch {
	case entry.StatusCode == domain.StatusActive && previous != domain.StatusActive:
		resource.ActiveUserCount++
	case entry.StatusCode != domain.StatusActive && previous == domain.StatusActive:
		resource.ActiveUserCount--
	}
	resource.LastModificationDate = entry.Timestamp
	return nil
}

// Enqueue appends a QUEUED entry at the tail of the queue and returns the position.
func Enqueue(resource *domain.Resource, ticketID string, ts time.Time) (int, error) {
	pos := ledger.MaxQueuePosition(resource.Tickets) + 1
	err := AppendStatus(resource, ticketID, domain.StatusEntry{
		StatusCode:    domain.StatusQueued,
		Timestamp:     ts,
		QueuePosition: domain.Position(pos),
	})
	return pos, err
}

// ForwardQueue moves every queued ticket one position forward after the front
// ticket has left. It refuses to run while position 1 is still held, so a
// repeated call for the same departure is rejected rather than double-shifting.
func ForwardQueue(resource *domain.Resource, ts time.Time) error {
	if ledger.TicketAtQueuePosition(resource.Tickets, 1) != nil {
		return ErrQueueFrontOccupied
	}
	shiftPositions(resource, []int{0})
	resource.LastModificationDate = ts
	return nil
}

// ClosePositionGap closes the hole left by a ticket leaving the queue from pos.
func ClosePositionGap(resource *domain.Resource, pos int, ts time.Time) {
	shiftPositions(resource, []int{pos})
	resource.LastModificationDate = ts
}

// shiftPositions renumbers current entries after the given vacated positions.
// removed must be sorted. A ticket between removed[i] and removed[i+1] moves
// forward by i+1.
func shiftPositions(resource *domain.Resource, removed []int) {
	if len(removed) == 0 {
		return
	}
	for i := range resource.Tickets {
		ticket := &resource.Tickets[i]
		pos, ok := ledger.QueuePosition(ticket)
		if !ok {
			continue
		}
		shift := 0
		for idx, vacated := range removed {
			next := math.MaxInt
			if idx+1 < len(removed) {
				next = removed[idx+1]
			}
			if pos > vacated && pos < next {
				shift = idx + 1
				break
			}
		}
		if shift == 0 {
			continue
		}
		last := &ticket.Statuses[len(ticket.Statuses)-1]
		last.QueuePosition = domain.Position(pos - shift)
	}
}

// NotificationRemover deletes pending notifications for users on a resource.
type NotificationRemover interface {
	DeleteByResourceAndUsers(ctx context.Context, resourceID string, userIDs []string) (int64, error)
}

// Mutator runs the queue mutations that also touch stored notifications.
type Mutator struct {
	notifications NotificationRemover
}

// NewMutator constructs a Mutator bound to a transaction's notification store.
func NewMutator(notifications NotificationRemover) *Mutator {
	return &Mutator{notifications: notifications}
}

// RemoveUsersInQueue pulls every ticket of the given users off the resource,
// renumbers the remaining queue densely and deletes the users' notifications.
func (m *Mutator) RemoveUsersInQueue(ctx context.Context, resource *domain.Resource, userIDs []string, ts time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	targets := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		targets[id] = struct{}{}
	}

	var removed []int
	for i := range resource.Tickets {
		if _, ok := targets[resource.Tickets[i].User.ID]; !ok {
			continue
		}
		if pos, ok := ledger.QueuePosition(&resource.Tickets[i]); ok {
			removed = append(removed, pos)
		}
	}
	sort.Ints(removed)
	shiftPositions(resource, removed)

	if _, err := m.notifications.DeleteByResourceAndUsers(ctx, resource.ID, userIDs); err != nil {
		return err
	}

	kept := resource.Tickets[:0]
	for _, ticket := range resource.Tickets {
		if _, ok := targets[ticket.User.ID]; !ok {
			kept = append(kept, ticket)
			continue
		}
		if ledger.CurrentStatus(&ticket).StatusCode == domain.StatusActive {
			resource.ActiveUserCount--
		}
	}
	resource.Tickets = kept
	resource.LastModificationDate = ts
	return nil
}

// RemoveAwaitingConfirmation strips the current AWAITING_CONFIRMATION entry and
// the QUEUED entry at first that preceded it, and deletes the holder's
// notification. It reports false without changes when nobody is awaiting.
func (m *Mutator) RemoveAwaitingConfirmation(ctx context.Context, resource *domain.Resource, first int, ts time.Time) (bool, error) {
	ticket := ledger.AwaitingTicket(resource.Tickets)
	if ticket == nil {
		return false, nil
	}
	if _, err := m.notifications.DeleteByResourceAndUsers(ctx, resource.ID, []string{ticket.User.ID}); err != nil {
		return false, err
	}

	statuses := ticket.Statuses[:len(ticket.Statuses)-1]
	for i := len(statuses) - 1; i >= 0; i-- {
		e := statuses[i]
		if e.StatusCode == domain.StatusQueued && e.QueuePosition != nil && *e.QueuePosition == first {
			statuses = append(statuses[:i], statuses[i+1:]...)
			break
		}
	}
	ticket.Statuses = statuses
	resource.LastModificationDate = ts
	return true, nil
}
