package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/resource-queue/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a transaction lost a race and may be retried.
	ErrConflict = errors.New("transaction conflict")
)

// ResourceRepository persists resource documents including their tickets.
type ResourceRepository interface {
	Create(ctx context.Context, resource *domain.Resource) error
	GetByID(ctx context.Context, id string) (*domain.Resource, error)
	Save(ctx context.Context, resource *domain.Resource) error
	// ListByUser returns resources holding any ticket of the user, oldest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Resource, error)
	ListCreatedBy(ctx context.Context, userID string) ([]domain.Resource, error)
	// ListAwaitingConfirmation returns resources whose history contains an awaiting entry.
	ListAwaitingConfirmation(ctx context.Context) ([]domain.Resource, error)
	Delete(ctx context.Context, ids []string) (int64, error)
}

// NotificationRepository persists pending availability notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByUser(ctx context.Context, userID string) ([]domain.Notification, error)
	DeleteByResourceAndUsers(ctx context.Context, resourceID string, userIDs []string) (int64, error)
	DeleteByResources(ctx context.Context, resourceIDs []string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// UserRepository defines persistence access for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Search(ctx context.Context, query string, limit int) ([]domain.PublicUser, error)
	AddSubscription(ctx context.Context, userID string, sub domain.WebPushSubscription) error
	RemoveSubscription(ctx context.Context, userID, endpoint string) error
	Delete(ctx context.Context, id string) error
}

// Repositories bundles the repositories of one store, either bound to a
// transaction or auto-committing.
type Repositories struct {
	Resources     ResourceRepository
	Notifications NotificationRepository
	Users         UserRepository
}

// TxFunc is the body of a transaction. It may run more than once when the
// backend retries transient failures, so it must reload what it reads.
type TxFunc func(ctx context.Context, repos Repositories) error

// Store is a transactional document store.
type Store interface {
	Repositories() Repositories
	WithTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
}

const defaultSearchLimit = 20

func searchLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultSearchLimit
	}
	return limit
}
