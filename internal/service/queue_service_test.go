package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/resource-queue/internal/cache"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/events"
	"github.com/spec-kit/resource-queue/internal/ledger"
)

// queueOf builds a resource with one slot held by the first user and the
// others queued in order.
func queueOf(t *testing.T, h *harness, ids ...string) (string, []*domain.User) {
	t.Helper()
	owner := h.user(t, "owner")
	users := make([]*domain.User, len(ids))
	for i, id := range ids {
		users[i] = h.user(t, id)
	}
	resourceID := h.resource(t, owner, 1, users...)
	for _, u := range users {
		h.mustTransition(t, u, resourceID, domain.StatusRequesting)
	}
	return resourceID, users
}

func TestCreateResourceMakesCreatorAdmin(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner")
	member := h.user(t, "member")

	card, err := h.queue.CreateResource(h.ctx, owner, CreateResourceInput{
		Name:             "  scanner ",
		MaxActiveTickets: 2,
		Users:            []ResourceUserInput{{UserID: member.ID}, {UserID: member.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "scanner", card.Name)
	require.NotNil(t, card.Ticket)
	assert.Equal(t, domain.RoleResourceAdmin, card.Ticket.Role)
	assert.Equal(t, domain.StatusInitialized, card.Ticket.StatusCode)

	resource := h.load(t, card.ResourceID)
	assert.Len(t, resource.Tickets, 2)
	assert.True(t, resourceHasRole(resource, member.ID, domain.RoleResourceUser))
}

func resourceHasRole(resource *domain.Resource, userID string, role domain.LocalRole) bool {
	ticket := ledger.LiveTicket(resource.Tickets, userID)
	return ticket != nil && ticket.User.Role == role
}

func TestCreateResourceValidation(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner")

	_, err := h.queue.CreateResource(h.ctx, owner, CreateResourceInput{Name: "", MaxActiveTickets: 1})
	assertCode(t, err, "VALIDATION_FAILED")
	_, err = h.queue.CreateResource(h.ctx, owner, CreateResourceInput{Name: "x", MaxActiveTickets: 0})
	assertCode(t, err, "VALIDATION_FAILED")
	_, err = h.queue.CreateResource(h.ctx, owner, CreateResourceInput{Name: "x", MaxActiveTickets: 1, Users: []ResourceUserInput{{UserID: "ghost"}}})
	assertCode(t, err, "NOT_FOUND")
}

func TestRequestGrantsFreeSlotThenQueues(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c")

	assert.Equal(t, domain.StatusActive, h.status(t, resourceID, users[0].ID).StatusCode)
	assertPosition(t, h.status(t, resourceID, users[1].ID), domain.StatusQueued, 1)
	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusQueued, 2)

	resource := h.load(t, resourceID)
	assert.Equal(t, 1, resource.ActiveUserCount)
	assertConsistent(t, resource)
	assert.Empty(t, h.notifications(t, users[1].ID))
}

func TestReleasePromotesHeadOfQueue(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c")
	require.NoError(t, h.memory.Repositories().Users.AddSubscription(h.ctx, users[1].ID, domain.WebPushSubscription{
		Endpoint: "https://push.example/b",
		Keys:     domain.WebPushKeys{Auth: "auth", P256dh: "key"},
	}))

	var received []events.Event
	h.dispatcher.Subscribe(events.EventResourceReadyToPick, users[1].ID, func(_ context.Context, e events.Event) error {
		received = append(received, e)
		return nil
	})

	card := h.mustTransition(t, users[0], resourceID, domain.StatusInactive)
	assert.Equal(t, domain.StatusInactive, card.Ticket.StatusCode)

	assertPosition(t, h.status(t, resourceID, users[1].ID), domain.StatusAwaitingConfirmation, 1)
	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusQueued, 2)
	resource := h.load(t, resourceID)
	assert.Equal(t, 0, resource.ActiveUserCount)
	assertConsistent(t, resource)

	notes := h.notifications(t, users[1].ID)
	require.Len(t, notes, 1)
	assert.Equal(t, resourceID, notes[0].Resource.ID)
	assert.Equal(t, domain.TitleRefResourceAvailable, notes[0].TitleRef)

	require.Len(t, received, 1)
	assert.Equal(t, users[1].ID, received[0].UserID)
	assert.Equal(t, 1, h.pusher.count("https://push.example/b"))
}

func TestConfirmTakesSlotAndForwardsQueue(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c")
	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)

	card := h.mustTransition(t, users[1], resourceID, domain.StatusActive)
	assert.Equal(t, domain.StatusActive, card.Ticket.StatusCode)
	assert.Nil(t, card.Ticket.QueuePosition)

	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusQueued, 1)
	assert.Empty(t, h.notifications(t, users[1].ID))
	resource := h.load(t, resourceID)
	assert.Equal(t, 1, resource.ActiveUserCount)
	assertConsistent(t, resource)
}

func TestDecliningReservationPassesItOn(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c")
	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)

	h.mustTransition(t, users[1], resourceID, domain.StatusInactive)

	ticket := ledger.LiveTicket(h.load(t, resourceID).Tickets, users[1].ID)
	codes := make([]domain.StatusCode, 0, len(ticket.Statuses))
	for _, e := range ticket.Statuses {
		codes = append(codes, e.StatusCode)
	}
	assert.Equal(t, []domain.StatusCode{domain.StatusRequesting, domain.StatusInactive}, codes)

	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusAwaitingConfirmation, 1)
	assert.Empty(t, h.notifications(t, users[1].ID))
	assert.Len(t, h.notifications(t, users[2].ID), 1)
	assertConsistent(t, h.load(t, resourceID))
}

func TestLeavingMiddleOfQueueClosesGap(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c", "d")

	h.mustTransition(t, users[2], resourceID, domain.StatusInactive)
	assertPosition(t, h.status(t, resourceID, users[1].ID), domain.StatusQueued, 1)
	assertPosition(t, h.status(t, resourceID, users[3].ID), domain.StatusQueued, 2)
	assertConsistent(t, h.load(t, resourceID))

	h.mustTransition(t, users[2], resourceID, domain.StatusQueued)
	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusQueued, 3)

	h.mustTransition(t, users[1], resourceID, domain.StatusRevoked)
	assertPosition(t, h.status(t, resourceID, users[3].ID), domain.StatusQueued, 1)
	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusQueued, 2)
	assertConsistent(t, h.load(t, resourceID))

	_, err := h.transition(users[1], resourceID, domain.StatusRequesting)
	assertCode(t, err, "GUARD_REJECTED")
}

func TestRejectedTransitionsLeaveStateUntouched(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")
	outsider := h.user(t, "outsider")
	before := h.load(t, resourceID)

	cases := []struct {
		name   string
		actor  *domain.User
		target domain.StatusCode
	}{
		{"active cannot queue", users[0], domain.StatusQueued},
		{"queued cannot confirm", users[1], domain.StatusActive},
		{"awaiting is assigned by the system", users[1], domain.StatusAwaitingConfirmation},
		{"initialized is never requested", users[0], domain.StatusInitialized},
		{"no ticket", outsider, domain.StatusRequesting},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.transition(tc.actor, resourceID, tc.target)
			assertCode(t, err, "GUARD_REJECTED")
		})
	}

	_, err := h.transition(users[0], resourceID, domain.StatusCode("PAUSED"))
	assertCode(t, err, "VALIDATION_FAILED")
	_, err = h.transition(users[0], "missing", domain.StatusInactive)
	assertCode(t, err, "NOT_FOUND")

	assert.Equal(t, before, h.load(t, resourceID))
}

// seedFullResource stores a resource whose only slot is held while the head
// of the queue is awaiting confirmation.
func seedFullResource(t *testing.T, h *harness, holder, waiter *domain.User) string {
	t.Helper()
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	resource := &domain.Resource{
		ID:               "full",
		Name:             "full",
		MaxActiveTickets: 1,
		ActiveUserCount:  1,
		CreationDate:     ts,
		Tickets: []domain.Ticket{
			{ID: "t1", User: domain.TicketUser{ID: holder.ID, Role: domain.RoleResourceUser}, Statuses: []domain.StatusEntry{
				{StatusCode: domain.StatusActive, Timestamp: ts},
			}},
			{ID: "t2", User: domain.TicketUser{ID: waiter.ID, Role: domain.RoleResourceUser}, Statuses: []domain.StatusEntry{
				{StatusCode: domain.StatusQueued, Timestamp: ts, QueuePosition: domain.Position(1)},
				{StatusCode: domain.StatusAwaitingConfirmation, Timestamp: ts, QueuePosition: domain.Position(1)},
			}},
		},
	}
	require.NoError(t, h.memory.Repositories().Resources.Create(h.ctx, resource))
	return resource.ID
}

func TestConfirmRejectedWhenNoSlotIsFree(t *testing.T) {
	h := newHarness(t)
	waiter := h.user(t, "waiter")
	resourceID := seedFullResource(t, h, h.user(t, "holder"), waiter)

	_, err := h.transition(waiter, resourceID, domain.StatusActive)
	assertCode(t, err, "GUARD_REJECTED")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestAdminActsOnBehalfOfTarget(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a")
	root := h.admin(t, "root")

	_, err := h.queue.RequestTransition(h.ctx, root, TransitionRequest{ResourceID: resourceID, TargetStatus: domain.StatusInactive})
	assertCode(t, err, "FORBIDDEN")

	target := users[0].ID
	card, err := h.queue.RequestTransition(h.ctx, root, TransitionRequest{
		ResourceID:   resourceID,
		TargetStatus: domain.StatusInactive,
		TargetUserID: &target,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, card.Ticket.StatusCode)
}

func TestTransactionConflictsAreRetried(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a")

	h.store.conflicts = 2
	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)
	assert.Equal(t, domain.StatusInactive, h.status(t, resourceID, users[0].ID).StatusCode)

	h.store.conflicts = 3
	_, err := h.transition(users[0], resourceID, domain.StatusQueued)
	assertCode(t, err, "CONFLICT")
	assert.Equal(t, domain.StatusInactive, h.status(t, resourceID, users[0].ID).StatusCode)
}

func TestExpireAwaitingConfirmations(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c")
	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)

	outcomes, err := h.queue.ExpireAwaitingConfirmations(h.ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	h.advance(2 * time.Minute)
	outcomes, err = h.queue.ExpireAwaitingConfirmations(h.ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Released)
	assert.Equal(t, TriggerTimeout, outcomes[0].Trigger)
	assert.Equal(t, users[1].ID, outcomes[0].UserID)

	assert.Equal(t, domain.StatusInactive, h.status(t, resourceID, users[1].ID).StatusCode)
	assertPosition(t, h.status(t, resourceID, users[2].ID), domain.StatusAwaitingConfirmation, 1)
	assertConsistent(t, h.load(t, resourceID))
}

func TestLateReleaseDoesNotUndoConfirmation(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")
	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)
	h.mustTransition(t, users[1], resourceID, domain.StatusActive)

	outcome := h.queue.releaseInOwnTransaction(h.ctx, resourceID, users[1].ID, domain.StatusAwaitingConfirmation, TriggerTimeout)
	assert.False(t, outcome.Released)
	assert.ErrorIs(t, outcome.Err, ErrStaleRelease)
	assert.Equal(t, domain.StatusActive, h.status(t, resourceID, users[1].ID).StatusCode)
}

func TestClearOutOnlyAcceptsHoldingStatuses(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")
	resource := h.load(t, resourceID)

	_, err := h.queue.ClearOutQueueDependantTickets(h.ctx, resource, []string{users[1].ID}, domain.StatusQueued)
	assertCode(t, err, "VALIDATION_FAILED")

	outcomes, err := h.queue.ClearOutQueueDependantTickets(h.ctx, resource, []string{users[0].ID, users[1].ID}, domain.StatusActive)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, TriggerForced, outcomes[0].Trigger)
	assert.True(t, outcomes[0].Released)
	assertPosition(t, h.status(t, resourceID, users[1].ID), domain.StatusAwaitingConfirmation, 1)
}

func TestEvictionRequiresResourceAdmin(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b", "c")
	owner, err := h.memory.Repositories().Users.GetByID(h.ctx, "owner")
	require.NoError(t, err)

	_, err = h.queue.RemoveResourceUsers(h.ctx, users[1], resourceID, []string{users[0].ID})
	assertCode(t, err, "FORBIDDEN")
	_, err = h.queue.RemoveResourceUsers(h.ctx, owner, "missing", []string{users[0].ID})
	assertCode(t, err, "NOT_FOUND")

	outcome, err := h.queue.RemoveResourceUsers(h.ctx, owner, resourceID, []string{users[0].ID, users[2].ID})
	require.NoError(t, err)
	assert.False(t, outcome.Failed())

	resource := h.load(t, resourceID)
	assert.Nil(t, ledger.LiveTicket(resource.Tickets, users[0].ID))
	assert.Nil(t, ledger.LiveTicket(resource.Tickets, users[2].ID))
	assertPosition(t, h.status(t, resourceID, users[1].ID), domain.StatusAwaitingConfirmation, 1)
	assertConsistent(t, resource)
}

func TestAddResourceUsers(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner")
	late := h.user(t, "late")
	resourceID := h.resource(t, owner, 1)

	_, err := h.queue.AddResourceUsers(h.ctx, late, resourceID, []ResourceUserInput{{UserID: late.ID}})
	assertCode(t, err, "FORBIDDEN")

	_, err = h.queue.AddResourceUsers(h.ctx, owner, resourceID, []ResourceUserInput{{UserID: late.ID, Role: "OWNER"}})
	assertCode(t, err, "VALIDATION_FAILED")

	_, err = h.queue.AddResourceUsers(h.ctx, owner, resourceID, []ResourceUserInput{{UserID: late.ID}})
	require.NoError(t, err)
	h.mustTransition(t, late, resourceID, domain.StatusRequesting)
	assert.Equal(t, domain.StatusActive, h.status(t, resourceID, late.ID).StatusCode)
}

func TestResourceCardIsCachedUntilMutation(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")

	card, err := h.queue.GetResourceCard(h.ctx, users[1], resourceID, nil)
	require.NoError(t, err)
	assertPosition(t, domain.StatusEntry{StatusCode: card.Ticket.StatusCode, QueuePosition: card.Ticket.QueuePosition}, domain.StatusQueued, 1)

	_, ok, err := h.cache.Get(h.ctx, cardKey(resourceID, users[1].ID))
	require.NoError(t, err)
	assert.True(t, ok)

	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)
	_, ok, err = h.cache.Get(h.ctx, cardKey(resourceID, users[1].ID))
	require.NoError(t, err)
	assert.False(t, ok)

	card, err = h.queue.GetResourceCard(h.ctx, users[1], resourceID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingConfirmation, card.Ticket.StatusCode)

	outsider := h.user(t, "outsider")
	_, err = h.queue.GetResourceCard(h.ctx, outsider, resourceID, nil)
	assertCode(t, err, "FORBIDDEN")
}

func TestCheckTransitionIsReadOnly(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")

	decision, err := h.queue.CheckTransition(h.ctx, users[1], resourceID, domain.StatusInactive, nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, domain.StatusQueued, decision.Current.StatusCode)
	assert.Equal(t, 1, decision.Bounds.First)

	decision, err = h.queue.CheckTransition(h.ctx, users[1], resourceID, domain.StatusActive, nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assertPosition(t, h.status(t, resourceID, users[1].ID), domain.StatusQueued, 1)
}

func TestCheckTransitionAgreesWithRequestTransition(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")

	decision, err := h.queue.CheckTransition(h.ctx, users[1], resourceID, domain.StatusAwaitingConfirmation, nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ErrNotRequestable.Error(), decision.Reason)
	_, err = h.transition(users[1], resourceID, domain.StatusAwaitingConfirmation)
	assert.ErrorIs(t, err, ErrNotRequestable)

	h.mustTransition(t, users[0], resourceID, domain.StatusInactive)
	decision, err = h.queue.CheckTransition(h.ctx, users[1], resourceID, domain.StatusActive, nil)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)

	waiter := h.user(t, "waiter")
	fullID := seedFullResource(t, h, h.user(t, "holder"), waiter)
	decision, err = h.queue.CheckTransition(h.ctx, waiter, fullID, domain.StatusActive, nil)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ErrCapacityExceeded.Error(), decision.Reason)
	_, err = h.transition(waiter, fullID, domain.StatusActive)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCleanupCollectsFailures(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a", "b")
	h.store.saveFails[resourceID] = 2

	outcome := h.queue.CleanupUsers(h.ctx, h.load(t, resourceID), []string{users[0].ID}, "eviction")
	assert.True(t, outcome.Failed())
	require.Len(t, outcome.Releases, 1)
	assert.True(t, errors.Is(outcome.Releases[0].Err, errInjected))
	assert.ErrorIs(t, outcome.Err, errInjected)
	assert.Equal(t, domain.StatusActive, h.status(t, resourceID, users[0].ID).StatusCode)
}

func TestWriteLockSuspendsCardCaching(t *testing.T) {
	h := newHarness(t)
	resourceID, users := queueOf(t, h, "a")

	lock, err := h.cache.LockWrites(h.ctx)
	require.NoError(t, err)
	_, err = h.queue.GetResourceCard(h.ctx, users[0], resourceID, nil)
	require.NoError(t, err)
	_, ok, err := h.cache.Get(h.ctx, cardKey(resourceID, users[0].ID))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, lock.Release(h.ctx))

	_, err = h.queue.GetResourceCard(h.ctx, users[0], resourceID, nil)
	require.NoError(t, err)
	_, ok, err = h.cache.Get(h.ctx, cardKey(resourceID, users[0].ID))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, h.cache.Invalidate(h.ctx, lock, cache.Scope(cache.TypeResourceCard, resourceID)))
}
