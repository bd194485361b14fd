package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/auth"
	"github.com/spec-kit/resource-queue/internal/cache"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/guard"
	"github.com/spec-kit/resource-queue/internal/ledger"
	"github.com/spec-kit/resource-queue/internal/repository"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

// UserService manages user accounts, their tokens and their deletion.
type UserService struct {
	store    repository.Store
	tx       *transactor
	queue    *QueueService
	notifier *NotificationService
	tokens   *auth.TokenManager
	sessions auth.SessionStore
	views    *viewCache
	logger   *zap.Logger
}

// UserDependencies bundles collaborators of the user service.
type UserDependencies struct {
	Store    repository.Store
	Queue    *QueueService
	Notifier *NotificationService
	Tokens   *auth.TokenManager
	Sessions auth.SessionStore
}

// CreateUserInput describes a new account. ID is generated when empty.
type CreateUserInput struct {
	ID         string
	Username   string
	Name       string
	Surname    string
	Email      string
	GlobalRole domain.GlobalRole
}

// DeletionReport describes what deleting a user changed.
type DeletionReport struct {
	UserID               string
	Cleanup              []CleanupOutcome
	DeletedResources     []string
	DeletedNotifications int64
	Deliveries           []DeliveryReport
}

// NewUserService constructs the service. It shares the transaction, cache and
// logging setup of the queue service.
func NewUserService(deps UserDependencies) *UserService {
	return &UserService{
		store:    deps.Store,
		tx:       deps.Queue.tx,
		queue:    deps.Queue,
		notifier: deps.Notifier,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		views:    deps.Queue.views,
		logger:   deps.Queue.logger,
	}
}

func userKey(userID string) string {
	return cache.Key(cache.Scope(cache.TypeUser, userID), "profile")
}

// CurrentUser returns the actor, or the named user when the actor is a global admin.
func (s *UserService) CurrentUser(ctx context.Context, actor *domain.User, targetUserID *string) (*domain.User, error) {
	userID := actor.ID
	if targetUserID != nil && *targetUserID != "" {
		id, err := guard.TargetUserID(actor, targetUserID)
		if err != nil {
			return nil, toDomainError(err, "user")
		}
		userID = id
	}

	var cached domain.User
	if s.views.get(ctx, userKey(userID), &cached) {
		return &cached, nil
	}
	user, err := s.store.Repositories().Users.GetByID(ctx, userID)
	if err != nil {
		return nil, toDomainError(err, "user")
	}
	s.views.set(ctx, userKey(userID), user)
	return user, nil
}

// SearchUsers finds users by name, surname, username or email.
func (s *UserService) SearchUsers(ctx context.Context, query string, limit int) ([]domain.PublicUser, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.PublicUser{}, nil
	}
	key := cache.Key(cache.TypePublicUser, fmt.Sprintf("search:%d:%s", limit, strings.ToLower(query)))
	var cached []domain.PublicUser
	if s.views.get(ctx, key, &cached) {
		return cached, nil
	}
	users, err := s.store.Repositories().Users.Search(ctx, query, limit)
	if err != nil {
		return nil, toDomainError(err, "user")
	}
	if users == nil {
		users = []domain.PublicUser{}
	}
	s.views.set(ctx, key, users)
	return users, nil
}

// CreateUser registers a new account.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperrors.NewValidationError("username is required", nil)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, apperrors.NewValidationError("email is invalid", map[string]any{"email": input.Email})
	}
	role := input.GlobalRole
	if role == "" {
		role = domain.GlobalRoleUser
	}
	if role != domain.GlobalRoleUser && role != domain.GlobalRoleAdmin {
		return nil, apperrors.NewValidationError("unknown global role", map[string]any{"globalRole": input.GlobalRole})
	}
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}

	user := &domain.User{
		ID:                   id,
		Username:             username,
		Name:                 strings.TrimSpace(input.Name),
		Surname:              strings.TrimSpace(input.Surname),
		Email:                strings.ToLower(strings.TrimSpace(input.Email)),
		GlobalRole:           role,
		WebPushSubscriptions: []domain.WebPushSubscription{},
		CreationDate:         s.queue.now(),
	}
	if err := s.store.Repositories().Users.Create(ctx, user); err != nil {
		return nil, toDomainError(err, "user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("global_role", string(role)))
	return user, nil
}

// IssueToken signs an access token for the user and registers its session.
func (s *UserService) IssueToken(ctx context.Context, userID string) (string, domain.Session, error) {
	if _, err := s.store.Repositories().Users.GetByID(ctx, userID); err != nil {
		return "", domain.Session{}, toDomainError(err, "user")
	}
	token, session, err := s.tokens.GenerateToken(userID)
	if err != nil {
		return "", domain.Session{}, apperrors.NewInternalError(err)
	}
	if err := s.sessions.Register(ctx, userID, session.ID, s.tokens.TTL()); err != nil {
		return "", domain.Session{}, apperrors.NewInternalError(err)
	}
	return token, session, nil
}

// AddSubscription registers a web push endpoint for the actor.
func (s *UserService) AddSubscription(ctx context.Context, actor *domain.User, sub domain.WebPushSubscription) error {
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		return apperrors.NewValidationError("endpoint must be an https url", nil)
	}
	if sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		return apperrors.NewValidationError("subscription keys are required", nil)
	}

	lock, unlock := s.views.lock(ctx)
	defer unlock()
	if err := s.store.Repositories().Users.AddSubscription(ctx, actor.ID, sub); err != nil {
		return toDomainError(err, "user")
	}
	s.views.invalidate(ctx, lock, cache.Scope(cache.TypeUser, actor.ID))
	return nil
}

// ListNotifications returns the actor's pending notifications.
func (s *UserService) ListNotifications(ctx context.Context, actor *domain.User) ([]domain.Notification, error) {
	return s.notifier.ListForUser(ctx, actor.ID)
}

// DeleteUser removes a user. Queue cleanup on each resource is best-effort and
// reported; the removal itself is one transaction.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User, targetUserID *string, deleteAll bool) (*DeletionReport, error) {
	userID, err := guard.TargetUserID(actor, targetUserID)
	if err != nil {
		return nil, toDomainError(err, "user")
	}
	repos := s.store.Repositories()
	if _, err := repos.Users.GetByID(ctx, userID); err != nil {
		return nil, toDomainError(err, "user")
	}
	report := &DeletionReport{UserID: userID}
	log := s.logger.With(zap.String("user_id", userID))

	held, err := repos.Resources.ListByUser(ctx, userID)
	if err != nil {
		return nil, toDomainError(err, "resource")
	}
	for i := range held {
		resource := &held[i]
		if ledger.LiveTicket(resource.Tickets, userID) == nil {
			continue
		}
		report.Cleanup = append(report.Cleanup, s.queue.CleanupUsers(ctx, resource, []string{userID}, "deletion"))
	}

	var pending []*domain.Notification
	err = s.tx.run(ctx, "user.delete", func(ctx context.Context, repos repository.Repositories) error {
		sc := s.queue.newScope(repos)
		report.DeletedResources = nil

		created, err := repos.Resources.ListCreatedBy(ctx, userID)
		if err != nil {
			return err
		}
		doomed := map[string]struct{}{}
		for i := range created {
			if deleteAll || !hasOtherResourceUser(&created[i], userID) {
				doomed[created[i].ID] = struct{}{}
				report.DeletedResources = append(report.DeletedResources, created[i].ID)
			}
		}

		held, err := repos.Resources.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for i := range held {
			resource := &held[i]
			if _, ok := doomed[resource.ID]; ok {
				continue
			}
			if err := s.queue.pullUsers(ctx, sc, resource, []string{userID}); err != nil {
				return err
			}
			if err := repos.Resources.Save(ctx, resource); err != nil {
				return err
			}
		}

		if len(report.DeletedResources) > 0 {
			if _, err := repos.Resources.Delete(ctx, report.DeletedResources); err != nil {
				return err
			}
			if _, err := repos.Notifications.DeleteByResources(ctx, report.DeletedResources); err != nil {
				return err
			}
		}
		count, err := repos.Notifications.DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}
		report.DeletedNotifications = count
		if err := repos.Users.Delete(ctx, userID); err != nil {
			return err
		}
		pending = sc.pending
		return nil
	})
	if err != nil {
		log.Error("user deletion failed", zap.Error(err))
		return nil, toDomainError(err, "user")
	}

	lock, unlock := s.views.lock(ctx)
	defer unlock()
	if !s.views.invalidate(ctx, lock, cache.TypeUser, cache.TypePublicUser, cache.TypeResourceCard, cache.TypeResourceView) {
		log.Warn("cache invalidation after user deletion skipped")
	}
	if err := s.sessions.TerminateUserSessions(ctx, userID); err != nil {
		log.Warn("session termination failed", zap.Error(err))
	}
	report.Deliveries = s.notifier.DeliverAll(ctx, pending)

	log.Info("user deleted",
		zap.String("actor_id", actor.ID),
		zap.Bool("delete_all", deleteAll),
		zap.Strings("deleted_resources", report.DeletedResources),
	)
	return report, nil
}

// hasOtherResourceUser reports whether someone other than userID holds a live
// RESOURCE_USER ticket on the resource.
func hasOtherResourceUser(resource *domain.Resource, userID string) bool {
	for i := range resource.Tickets {
		ticket := &resource.Tickets[i]
		if ticket.User.ID == userID || ticket.User.Role != domain.RoleResourceUser {
			continue
		}
		if ledger.IsLive(ticket) {
			return true
		}
	}
	return false
}
