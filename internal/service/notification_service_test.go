package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/events"
	"github.com/spec-kit/resource-queue/internal/push"
	"github.com/spec-kit/resource-queue/internal/repository"
)

func queuedResource(ts time.Time, active, max int) *domain.Resource {
	resource := &domain.Resource{ID: "r1", Name: "plotter", MaxActiveTickets: max, ActiveUserCount: active}
	for i, id := range []string{"u1", "u2"} {
		resource.Tickets = append(resource.Tickets, domain.Ticket{
			ID:   "t-" + id,
			User: domain.TicketUser{ID: id, Username: id, Role: domain.RoleResourceUser},
			Statuses: []domain.StatusEntry{
				{StatusCode: domain.StatusQueued, Timestamp: ts, QueuePosition: domain.Position(i + 1)},
			},
		})
	}
	return resource
}

func TestPromoteNextReservesFrontTicket(t *testing.T) {
	h := newHarness(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	resource := queuedResource(ts, 0, 1)

	var created *domain.Notification
	err := h.memory.WithTransaction(h.ctx, func(ctx context.Context, repos repository.Repositories) error {
		n, err := h.notifier.PromoteNext(ctx, repos, resource, ts)
		created = n
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "u1", created.User.ID)
	assert.Equal(t, domain.StatusAwaitingConfirmation, created.TicketStatus)

	last := resource.Tickets[0].Statuses[len(resource.Tickets[0].Statuses)-1]
	assertPosition(t, last, domain.StatusAwaitingConfirmation, 1)
	assert.Len(t, h.notifications(t, "u1"), 1)

	err = h.memory.WithTransaction(h.ctx, func(ctx context.Context, repos repository.Repositories) error {
		n, err := h.notifier.PromoteNext(ctx, repos, resource, ts)
		assert.Nil(t, n, "a reservation is already outstanding")
		return err
	})
	require.NoError(t, err)
}

func TestPromoteNextWaitsForCapacity(t *testing.T) {
	h := newHarness(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	resource := queuedResource(ts, 1, 1)

	err := h.memory.WithTransaction(h.ctx, func(ctx context.Context, repos repository.Repositories) error {
		n, err := h.notifier.PromoteNext(ctx, repos, resource, ts)
		assert.Nil(t, n)
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, h.notifications(t, "u1"))
}

func TestDeliverPrunesGoneSubscriptionsAndContinues(t *testing.T) {
	h := newHarness(t)
	ada := h.user(t, "ada")
	users := h.memory.Repositories().Users
	for _, endpoint := range []string{"https://push.example/gone", "https://push.example/flaky", "https://push.example/ok"} {
		require.NoError(t, users.AddSubscription(h.ctx, ada.ID, domain.WebPushSubscription{
			Endpoint: endpoint,
			Keys:     domain.WebPushKeys{Auth: "a", P256dh: "k"},
		}))
	}
	cached, err := h.users.CurrentUser(h.ctx, ada, nil)
	require.NoError(t, err)
	require.Len(t, cached.WebPushSubscriptions, 3)
	h.pusher.errs["https://push.example/gone"] = push.ErrSubscriptionGone
	h.pusher.errs["https://push.example/flaky"] = errors.New("503 from push service")
	h.dispatcher.Subscribe(events.EventResourceReadyToPick, ada.ID, func(context.Context, events.Event) error {
		return errors.New("subscriber offline")
	})

	report := h.notifier.Deliver(h.ctx, &domain.Notification{
		ID:             "n1",
		User:           domain.NotificationUser{ID: ada.ID, Username: ada.Username},
		TitleRef:       domain.TitleRefResourceAvailable,
		DescriptionRef: domain.DescriptionRefResourceAvailable,
		Resource:       domain.NotificationResource{ID: "r1", Name: "plotter"},
	})

	assert.False(t, report.Published)
	assert.Error(t, report.PublishErr)
	require.Len(t, report.Pushes, 3)
	assert.True(t, report.Pushes[0].Pruned)
	assert.Error(t, report.Pushes[1].Err)
	assert.True(t, report.Pushes[2].Delivered)

	var payload map[string]string
	require.Equal(t, 1, h.pusher.count("https://push.example/ok"))
	require.NoError(t, json.Unmarshal(h.pusher.sent["https://push.example/ok"][0], &payload))
	assert.Equal(t, "r1", payload["resourceId"])
	assert.Equal(t, "n1", payload["notificationId"])

	stored, err := users.GetByID(h.ctx, ada.ID)
	require.NoError(t, err)
	require.Len(t, stored.WebPushSubscriptions, 2)
	assert.Equal(t, "https://push.example/flaky", stored.WebPushSubscriptions[0].Endpoint)

	_, ok, err := h.cache.Get(h.ctx, userKey(ada.ID))
	require.NoError(t, err)
	assert.False(t, ok, "pruning must drop the cached profile")
	fresh, err := h.users.CurrentUser(h.ctx, ada, nil)
	require.NoError(t, err)
	assert.Len(t, fresh.WebPushSubscriptions, 2)
}

func TestNotificationsAreCountedOnceCommitted(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "owner")
	a, b := h.user(t, "a"), h.user(t, "b")
	resourceID := h.resource(t, owner, 1, a, b)
	h.mustTransition(t, a, resourceID, domain.StatusRequesting)
	h.mustTransition(t, b, resourceID, domain.StatusRequesting)
	const counter = "resource_queue_notifications_created_total"
	require.Zero(t, h.counterValue(t, counter))

	h.store.saveFails[resourceID] = 1
	_, err := h.transition(a, resourceID, domain.StatusInactive)
	assertCode(t, err, "INTERNAL_ERROR")
	assert.Zero(t, h.counterValue(t, counter))
	assert.Empty(t, h.notifications(t, b.ID))

	h.mustTransition(t, a, resourceID, domain.StatusInactive)
	assert.Equal(t, 1.0, h.counterValue(t, counter))
	assert.Len(t, h.notifications(t, b.ID), 1)
}

func TestDeliverReportsMissingRecipient(t *testing.T) {
	h := newHarness(t)

	report := h.notifier.Deliver(h.ctx, &domain.Notification{ID: "n1", User: domain.NotificationUser{ID: "ghost"}})
	assert.True(t, report.Published)
	assert.ErrorIs(t, report.LookupErr, repository.ErrNotFound)
	assert.Empty(t, report.Pushes)
}
