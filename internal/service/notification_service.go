package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/cache"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/events"
	"github.com/spec-kit/resource-queue/internal/ledger"
	"github.com/spec-kit/resource-queue/internal/observability"
	"github.com/spec-kit/resource-queue/internal/push"
	"github.com/spec-kit/resource-queue/internal/queue"
	"github.com/spec-kit/resource-queue/internal/repository"
)

// NotificationService promotes the next queued user and tells them about it.
type NotificationService struct {
	store     repository.Store
	publisher events.Publisher
	pusher    push.Pusher
	views     *viewCache
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NotificationDependencies bundles collaborators of the notification service.
type NotificationDependencies struct {
	Store     repository.Store
	Publisher events.Publisher
	Pusher    push.Pusher
	Cache     cache.Cache
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// PushOutcome is the result of pushing to one subscription.
type PushOutcome struct {
	Endpoint  string
	Delivered bool
	Pruned    bool
	Err       error
}

// DeliveryReport summarises the best-effort delivery of one notification.
type DeliveryReport struct {
	NotificationID string
	UserID         string
	Published      bool
	PublishErr     error
	LookupErr      error
	Pushes         []PushOutcome
}

type pushMessage struct {
	NotificationID string `json:"notificationId"`
	TitleRef       string `json:"titleRef"`
	DescriptionRef string `json:"descriptionRef"`
	ResourceID     string `json:"resourceId"`
	ResourceName   string `json:"resourceName"`
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	pusher := deps.Pusher
	if pusher == nil {
		pusher = push.NoopPusher{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		store:     deps.Store,
		publisher: deps.Publisher,
		pusher:    pusher,
		views:     newViewCache(deps.Cache, 0, logger),
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

// PromoteNext reserves the next free slot for the head of the queue. It runs
// inside the caller's transaction and does nothing while another user is
// awaiting confirmation or no slot is free.
func (n *NotificationService) PromoteNext(ctx context.Context, repos repository.Repositories, resource *domain.Resource, ts time.Time) (*domain.Notification, error) {
	if ledger.AwaitingTicket(resource.Tickets) != nil {
		return nil, nil
	}
	if resource.ActiveUserCount >= resource.MaxActiveTickets {
		return nil, nil
	}
	first := ledger.MinQueuePosition(resource.Tickets)
	ticket := ledger.TicketAtQueuePosition(resource.Tickets, first)
	if ticket == nil || ledger.CurrentStatus(ticket).StatusCode != domain.StatusQueued {
		return nil, nil
	}

	if err := queue.AppendStatus(resource, ticket.ID, domain.StatusEntry{
		StatusCode:    domain.StatusAwaitingConfirmation,
		Timestamp:     ts,
		QueuePosition: domain.Position(first),
	}); err != nil {
		return nil, err
	}

	notification := &domain.Notification{
		ID:             uuid.NewString(),
		TicketStatus:   domain.StatusAwaitingConfirmation,
		User:           domain.NotificationUser{ID: ticket.User.ID, Username: ticket.User.Username},
		TitleRef:       domain.TitleRefResourceAvailable,
		DescriptionRef: domain.DescriptionRefResourceAvailable,
		Resource: domain.NotificationResource{
			ID:        resource.ID,
			Name:      resource.Name,
			CreatedBy: resource.CreatedBy,
		},
		Timestamp: ts,
	}
	if err := repos.Notifications.Create(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// Deliver publishes a committed notification on the user's channel and pushes
// it to every registered subscription. Failures are reported, never returned.
func (n *NotificationService) Deliver(ctx context.Context, notification *domain.Notification) DeliveryReport {
	n.metrics.ObserveNotification()
	report := DeliveryReport{NotificationID: notification.ID, UserID: notification.User.ID}
	log := n.logger.With(
		zap.String("notification_id", notification.ID),
		zap.String("user_id", notification.User.ID),
		zap.String("resource_id", notification.Resource.ID),
	)

	if n.publisher != nil {
		err := n.publisher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventResourceReadyToPick,
			UserID:    notification.User.ID,
			Timestamp: notification.Timestamp,
			Payload:   events.ResourceReadyPayload{Notifications: []domain.Notification{*notification}},
		})
		if err != nil {
			report.PublishErr = err
			log.Warn("notification publish failed", zap.Error(err))
		} else {
			report.Published = true
		}
	}

	users := n.store.Repositories().Users
	user, err := users.GetByID(ctx, notification.User.ID)
	if err != nil {
		report.LookupErr = err
		log.Warn("notification recipient lookup failed", zap.Error(err))
		return report
	}

	payload, err := json.Marshal(pushMessage{
		NotificationID: notification.ID,
		TitleRef:       notification.TitleRef,
		DescriptionRef: notification.DescriptionRef,
		ResourceID:     notification.Resource.ID,
		ResourceName:   notification.Resource.Name,
	})
	if err != nil {
		report.LookupErr = err
		return report
	}

	pruned := false
	for _, sub := range user.WebPushSubscriptions {
		outcome := PushOutcome{Endpoint: sub.Endpoint}
		err := n.pusher.Send(ctx, sub, payload)
		switch {
		case err == nil:
			outcome.Delivered = true
			n.metrics.ObservePushDelivery("delivered")
		case errors.Is(err, push.ErrSubscriptionGone):
			n.metrics.ObservePushDelivery("gone")
			if pruneErr := users.RemoveSubscription(ctx, user.ID, sub.Endpoint); pruneErr != nil {
				outcome.Err = pruneErr
				log.Warn("push subscription prune failed", zap.String("endpoint", sub.Endpoint), zap.Error(pruneErr))
			} else {
				outcome.Pruned = true
				pruned = true
				log.Info("push subscription pruned", zap.String("endpoint", sub.Endpoint))
			}
		default:
			outcome.Err = err
			n.metrics.ObservePushDelivery("failed")
			log.Warn("push delivery failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		report.Pushes = append(report.Pushes, outcome)
	}
	if pruned {
		lock, unlock := n.views.lock(ctx)
		n.views.invalidate(ctx, lock, cache.Scope(cache.TypeUser, user.ID))
		unlock()
	}
	return report
}

// DeliverAll delivers each notification in order.
func (n *NotificationService) DeliverAll(ctx context.Context, notifications []*domain.Notification) []DeliveryReport {
	reports := make([]DeliveryReport, 0, len(notifications))
	for _, notification := range notifications {
		reports = append(reports, n.Deliver(ctx, notification))
	}
	return reports
}

// ListForUser returns the user's pending notifications, newest first.
func (n *NotificationService) ListForUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	list, err := n.store.Repositories().Notifications.ListByUser(ctx, userID)
	if err != nil {
		return nil, toDomainError(err, "notification")
	}
	return list, nil
}
