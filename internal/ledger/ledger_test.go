package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/resource-queue/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func ticket(id, user string, entries ...domain.StatusEntry) domain.Ticket {
	return domain.Ticket{
		ID:           id,
		User:         domain.TicketUser{ID: user, Username: user, Role: domain.RoleResourceUser},
		CreationDate: t0,
		Statuses:     entries,
	}
}

func entry(code domain.StatusCode, pos int) domain.StatusEntry {
	e := domain.StatusEntry{StatusCode: code, Timestamp: t0}
	if pos > 0 {
		e.QueuePosition = domain.Position(pos)
	}
	return e
}

func TestCurrentStatusDefaultsToInitialized(t *testing.T) {
	assert.Equal(t, domain.StatusInitialized, CurrentStatus(nil).StatusCode)

	empty := ticket("t1", "u1")
	current := CurrentStatus(&empty)
	assert.Equal(t, domain.StatusInitialized, current.StatusCode)
	assert.Equal(t, t0, current.Timestamp)
}

func TestCurrentStatusReturnsLastEntry(t *testing.T) {
	tk := ticket("t1", "u1",
		entry(domain.StatusInitialized, 0),
		entry(domain.StatusRequesting, 0),
		entry(domain.StatusQueued, 3),
	)
	current := CurrentStatus(&tk)
	require.NotNil(t, current.QueuePosition)
	assert.Equal(t, domain.StatusQueued, current.StatusCode)
	assert.Equal(t, 3, *current.QueuePosition)
}

func TestQueueBounds(t *testing.T) {
	assert.Equal(t, 0, MaxQueuePosition(nil))
	assert.Equal(t, 1, MinQueuePosition(nil))

	tickets := []domain.Ticket{
		ticket("a", "ua", entry(domain.StatusActive, 0)),
		ticket("b", "ub", entry(domain.StatusAwaitingConfirmation, 1)),
		ticket("c", "uc", entry(domain.StatusQueued, 2)),
		// historical positions do not count
		ticket("d", "ud", entry(domain.StatusQueued, 7), entry(domain.StatusInactive, 0)),
		ticket("e", "ue", entry(domain.StatusQueued, 3)),
	}
	assert.Equal(t, []int{1, 2, 3}, QueuePositions(tickets))
	assert.Equal(t, 3, MaxQueuePosition(tickets))
	assert.Equal(t, 1, MinQueuePosition(tickets))
	assert.Equal(t, 1, ActiveCount(tickets))

	require.NotNil(t, AwaitingTicket(tickets))
	assert.Equal(t, "b", AwaitingTicket(tickets).ID)
	require.NotNil(t, TicketAtQueuePosition(tickets, 3))
	assert.Equal(t, "e", TicketAtQueuePosition(tickets, 3).ID)
	assert.Nil(t, TicketAtQueuePosition(tickets, 7))
}

func TestLiveTicketSkipsRevoked(t *testing.T) {
	tickets := []domain.Ticket{
		ticket("old", "u1", entry(domain.StatusInitialized, 0), entry(domain.StatusRevoked, 0)),
		ticket("new", "u1", entry(domain.StatusInitialized, 0)),
		ticket("other", "u2", entry(domain.StatusRevoked, 0)),
	}
	live := LiveTicket(tickets, "u1")
	require.NotNil(t, live)
	assert.Equal(t, "new", live.ID)
	assert.Nil(t, LiveTicket(tickets, "u2"))
	assert.Nil(t, LiveTicket(tickets, "missing"))
}

func TestLiveTicketAliasesSlice(t *testing.T) {
	tickets := []domain.Ticket{ticket("t1", "u1", entry(domain.StatusInitialized, 0))}
	live := LiveTicket(tickets, "u1")
	live.Statuses = append(live.Statuses, entry(domain.StatusRequesting, 0))
	assert.Equal(t, domain.StatusRequesting, CurrentStatus(&tickets[0]).StatusCode)
}

func TestZeroPositionIsNotQueued(t *testing.T) {
	tk := ticket("t1", "u1", domain.StatusEntry{StatusCode: domain.StatusQueued, QueuePosition: domain.Position(0)})
	_, ok := QueuePosition(&tk)
	assert.False(t, ok)
}
