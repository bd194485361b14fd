package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/cache"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/guard"
	"github.com/spec-kit/resource-queue/internal/ledger"
	"github.com/spec-kit/resource-queue/internal/observability"
	"github.com/spec-kit/resource-queue/internal/queue"
	"github.com/spec-kit/resource-queue/internal/repository"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

// Trigger names what caused a release.
type Trigger string

const (
	TriggerVoluntary Trigger = "voluntary"
	TriggerForced    Trigger = "forced"
	TriggerTimeout   Trigger = "timeout"
)

// QueueService runs ticket transitions on resources.
type QueueService struct {
	store    repository.Store
	tx       *transactor
	guard    *guard.Guard
	notifier *NotificationService
	views    *viewCache
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// QueueDependencies bundles collaborators of the queue service.
type QueueDependencies struct {
	Store         repository.Store
	Notifier      *NotificationService
	Cache         cache.Cache
	CacheTTL      time.Duration
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	TxMaxAttempts int
	Clock         func() time.Time
}

// TransitionRequest asks to move a user's ticket on a resource to TargetStatus.
// TargetUserID is required when the actor is a global admin.
type TransitionRequest struct {
	ResourceID   string
	TargetStatus domain.StatusCode
	TargetUserID *string
}

// ReleaseOutcome is the result of releasing one user's slot or reservation.
type ReleaseOutcome struct {
	ResourceID string
	UserID     string
	Trigger    Trigger
	Released   bool
	Err        error
}

// CleanupOutcome is the result of removing users from one resource.
type CleanupOutcome struct {
	ResourceID string
	Releases   []ReleaseOutcome
	Err        error
}

// Failed reports whether any step of the cleanup failed.
func (o CleanupOutcome) Failed() bool {
	if o.Err != nil {
		return true
	}
	for _, r := range o.Releases {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// ResourceUserInput invites a user to a resource.
type ResourceUserInput struct {
	UserID string
	Role   domain.LocalRole
}

// CreateResourceInput describes a new resource.
type CreateResourceInput struct {
	Name             string
	Description      string
	MaxActiveTickets int
	Users            []ResourceUserInput
}

// txScope carries per-attempt state of one transaction body.
type txScope struct {
	repos   repository.Repositories
	mutator *queue.Mutator
	now     time.Time
	pending []*domain.Notification
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &QueueService{
		store:    deps.Store,
		tx:       newTransactor(deps.Store, deps.TxMaxAttempts, logger, deps.Metrics),
		guard:    guard.New(deps.Store.Repositories().Resources),
		notifier: deps.Notifier,
		views:    newViewCache(deps.Cache, deps.CacheTTL, logger),
		logger:   logger,
		metrics:  deps.Metrics,
		now:      clock,
	}
}

func (s *QueueService) newScope(repos repository.Repositories) *txScope {
	return &txScope{repos: repos, mutator: queue.NewMutator(repos.Notifications), now: s.now()}
}

func cardKey(resourceID, userID string) string {
	return cache.Key(cache.Scope(cache.TypeResourceCard, resourceID), userID)
}

// RequestTransition validates and applies a transition of the target user's
// ticket, then delivers any notification the change produced.
func (s *QueueService) RequestTransition(ctx context.Context, actor *domain.User, req TransitionRequest) (*ResourceCard, error) {
	if !req.TargetStatus.Valid() {
		return nil, apperrors.NewValidationError("unknown target status", map[string]any{"targetStatus": req.TargetStatus})
	}
	userID, err := guard.TargetUserID(actor, req.TargetUserID)
	if err != nil {
		return nil, toDomainError(err, "user")
	}

	lock, release := s.views.lock(ctx)
	defer release()

	var card *ResourceCard
	var pending []*domain.Notification
	err = s.tx.run(ctx, "queue.transition", func(ctx context.Context, repos repository.Repositories) error {
		sc := s.newScope(repos)
		resource, err := repos.Resources.GetByID(ctx, req.ResourceID)
		if err != nil {
			return err
		}
		if err := s.applyTransition(ctx, sc, resource, userID, req.TargetStatus); err != nil {
			return err
		}
		if err := repos.Resources.Save(ctx, resource); err != nil {
			return err
		}
		card = BuildResourceCard(resource, userID)
		pending = sc.pending
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(req.TargetStatus), "rejected")
		return nil, toDomainError(err, "resource")
	}
	s.metrics.ObserveTransition(string(req.TargetStatus), "applied")
	s.logger.Info("ticket transition applied",
		zap.String("resource_id", req.ResourceID),
		zap.String("user_id", userID),
		zap.String("actor_id", actor.ID),
		zap.String("target", string(req.TargetStatus)),
	)

	s.views.invalidate(ctx, lock, cache.Scope(cache.TypeResourceCard, req.ResourceID))
	s.notifier.DeliverAll(ctx, pending)
	return card, nil
}

// admissible applies the checks a client request must pass on top of the
// transition table.
func admissible(decision guard.Decision, target domain.StatusCode) error {
	if target == domain.StatusInitialized || target == domain.StatusAwaitingConfirmation {
		return fmt.Errorf("%w: %s", ErrNotRequestable, target)
	}
	if !decision.HasTicket {
		return ErrNoLiveTicket
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, decision.Current.StatusCode, target)
	}
	if target == domain.StatusActive && decision.ActiveUserCount >= decision.MaxActiveTickets {
		return ErrCapacityExceeded
	}
	return nil
}

func (s *QueueService) applyTransition(ctx context.Context, sc *txScope, resource *domain.Resource, userID string, target domain.StatusCode) error {
	decision := guard.Evaluate(resource, userID, target)
	if err := admissible(decision, target); err != nil {
		return err
	}

	switch target {
	case domain.StatusRequesting:
		return s.request(ctx, sc, resource, decision.TicketID)
	case domain.StatusActive:
		return s.acquire(ctx, sc, resource, decision)
	case domain.StatusInactive:
		return s.release(ctx, sc, resource, userID, TriggerVoluntary)
	case domain.StatusQueued:
		return s.requeue(ctx, sc, resource, decision.TicketID)
	case domain.StatusRevoked:
		return s.revoke(ctx, sc, resource, decision.TicketID)
	}
	return fmt.Errorf("%w: %s", ErrNotRequestable, target)
}

// request grants a free slot directly when nobody is waiting, otherwise puts
// the ticket at the tail of the queue.
func (s *QueueService) request(ctx context.Context, sc *txScope, resource *domain.Resource, ticketID string) error {
	if err := queue.AppendStatus(resource, ticketID, domain.StatusEntry{StatusCode: domain.StatusRequesting, Timestamp: sc.now}); err != nil {
		return err
	}
	if resource.ActiveUserCount < resource.MaxActiveTickets && len(ledger.QueuePositions(resource.Tickets)) == 0 {
		return queue.AppendStatus(resource, ticketID, domain.StatusEntry{StatusCode: domain.StatusActive, Timestamp: sc.now})
	}
	if _, err := queue.Enqueue(resource, ticketID, sc.now); err != nil {
		return err
	}
	return s.promote(ctx, sc, resource)
}

// acquire confirms a reservation. Capacity was checked by admissible.
func (s *QueueService) acquire(ctx context.Context, sc *txScope, resource *domain.Resource, decision guard.Decision) error {
	ticket := resource.Ticket(decision.TicketID)
	if err := queue.AppendStatus(resource, ticket.ID, domain.StatusEntry{StatusCode: domain.StatusActive, Timestamp: sc.now}); err != nil {
		return err
	}
	if _, err := sc.repos.Notifications.DeleteByResourceAndUsers(ctx, resource.ID, []string{ticket.User.ID}); err != nil {
		return err
	}
	if err := queue.ForwardQueue(resource, sc.now); err != nil {
		return err
	}
	return s.promote(ctx, sc, resource)
}

// release gives up the user's slot, reservation or queue place and offers the
// freed capacity to the next user in line. Voluntary releases, forced
// evictions and confirmation timeouts all go through here.
func (s *QueueService) release(ctx context.Context, sc *txScope, resource *domain.Resource, userID string, trigger Trigger) error {
	ticket := ledger.LiveTicket(resource.Tickets, userID)
	if ticket == nil {
		return ErrNoLiveTicket
	}
	ticketID := ticket.ID
	inactive := domain.StatusEntry{StatusCode: domain.StatusInactive, Timestamp: sc.now}

	current := ledger.CurrentStatus(ticket)
	switch current.StatusCode {
	case domain.StatusActive:
		if err := queue.AppendStatus(resource, ticketID, inactive); err != nil {
			return err
		}
	case domain.StatusAwaitingConfirmation:
		first := ledger.MinQueuePosition(resource.Tickets)
		if _, err := sc.mutator.RemoveAwaitingConfirmation(ctx, resource, first, sc.now); err != nil {
			return err
		}
		if err := queue.ForwardQueue(resource, sc.now); err != nil {
			return err
		}
		if err := queue.AppendStatus(resource, ticketID, inactive); err != nil {
			return err
		}
	case domain.StatusQueued:
		pos, _ := ledger.QueuePosition(ticket)
		if err := queue.AppendStatus(resource, ticketID, inactive); err != nil {
			return err
		}
		queue.ClosePositionGap(resource, pos, sc.now)
	default:
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, current.StatusCode, domain.StatusInactive)
	}

	s.logger.Debug("ticket released",
		zap.String("resource_id", resource.ID),
		zap.String("user_id", userID),
		zap.String("from", string(current.StatusCode)),
		zap.String("trigger", string(trigger)),
	)
	return s.promote(ctx, sc, resource)
}

func (s *QueueService) requeue(ctx context.Context, sc *txScope, resource *domain.Resource, ticketID string) error {
	if _, err := queue.Enqueue(resource, ticketID, sc.now); err != nil {
		return err
	}
	return s.promote(ctx, sc, resource)
}

func (s *QueueService) revoke(ctx context.Context, sc *txScope, resource *domain.Resource, ticketID string) error {
	pos, queued := ledger.QueuePosition(resource.Ticket(ticketID))
	if err := queue.AppendStatus(resource, ticketID, domain.StatusEntry{StatusCode: domain.StatusRevoked, Timestamp: sc.now}); err != nil {
		return err
	}
	if queued {
		queue.ClosePositionGap(resource, pos, sc.now)
	}
	return s.promote(ctx, sc, resource)
}

func (s *QueueService) promote(ctx context.Context, sc *txScope, resource *domain.Resource) error {
	notification, err := s.notifier.PromoteNext(ctx, sc.repos, resource, sc.now)
	if err != nil {
		return err
	}
	if notification != nil {
		sc.pending = append(sc.pending, notification)
	}
	return nil
}

// releaseInOwnTransaction releases userID from resourceID if their ticket is
// still in expected, so that a late timeout cannot undo a confirmation.
func (s *QueueService) releaseInOwnTransaction(ctx context.Context, resourceID, userID string, expected domain.StatusCode, trigger Trigger) ReleaseOutcome {
	outcome := ReleaseOutcome{ResourceID: resourceID, UserID: userID, Trigger: trigger}

	lock, unlock := s.views.lock(ctx)
	defer unlock()

	var pending []*domain.Notification
	err := s.tx.run(ctx, "queue.release."+string(trigger), func(ctx context.Context, repos repository.Repositories) error {
		sc := s.newScope(repos)
		resource, err := repos.Resources.GetByID(ctx, resourceID)
		if err != nil {
			return err
		}
		ticket := ledger.LiveTicket(resource.Tickets, userID)
		if ticket == nil {
			return ErrNoLiveTicket
		}
		if current := ledger.CurrentStatus(ticket).StatusCode; current != expected {
			return fmt.Errorf("%w: %s, expected %s", ErrStaleRelease, current, expected)
		}
		if err := s.release(ctx, sc, resource, userID, trigger); err != nil {
			return err
		}
		if err := repos.Resources.Save(ctx, resource); err != nil {
			return err
		}
		pending = sc.pending
		return nil
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Released = true
	s.views.invalidate(ctx, lock, cache.Scope(cache.TypeResourceCard, resourceID))
	s.notifier.DeliverAll(ctx, pending)
	return outcome
}

// ClearOutQueueDependantTickets releases, one transaction each, every listed
// user whose ticket on resource is currently in status. Only ACTIVE and
// AWAITING_CONFIRMATION are accepted.
func (s *QueueService) ClearOutQueueDependantTickets(ctx context.Context, resource *domain.Resource, userIDs []string, status domain.StatusCode) ([]ReleaseOutcome, error) {
	if status != domain.StatusActive && status != domain.StatusAwaitingConfirmation {
		return nil, apperrors.NewValidationError("only active or awaiting tickets can be cleared out", map[string]any{"status": status})
	}
	var outcomes []ReleaseOutcome
	for _, userID := range userIDs {
		ticket := ledger.LiveTicket(resource.Tickets, userID)
		if ticket == nil || ledger.CurrentStatus(ticket).StatusCode != status {
			continue
		}
		outcome := s.releaseInOwnTransaction(ctx, resource.ID, userID, status, TriggerForced)
		if outcome.Err != nil {
			s.logger.Warn("forced release failed",
				zap.String("resource_id", resource.ID),
				zap.String("user_id", userID),
				zap.Error(outcome.Err),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// RemoveUsersFromQueue pulls the users' tickets off the resource in one
// transaction and promotes the next user if capacity was freed.
func (s *QueueService) RemoveUsersFromQueue(ctx context.Context, resourceID string, userIDs []string) error {
	lock, unlock := s.views.lock(ctx)
	defer unlock()

	var pending []*domain.Notification
	err := s.tx.run(ctx, "queue.remove_users", func(ctx context.Context, repos repository.Repositories) error {
		sc := s.newScope(repos)
		resource, err := repos.Resources.GetByID(ctx, resourceID)
		if err != nil {
			return err
		}
		if err := s.pullUsers(ctx, sc, resource, userIDs); err != nil {
			return err
		}
		if err := repos.Resources.Save(ctx, resource); err != nil {
			return err
		}
		pending = sc.pending
		return nil
	})
	if err != nil {
		return err
	}
	s.views.invalidate(ctx, lock, cache.Scope(cache.TypeResourceCard, resourceID))
	s.notifier.DeliverAll(ctx, pending)
	return nil
}

func (s *QueueService) pullUsers(ctx context.Context, sc *txScope, resource *domain.Resource, userIDs []string) error {
	if err := sc.mutator.RemoveUsersInQueue(ctx, resource, userIDs, sc.now); err != nil {
		return err
	}
	return s.promote(ctx, sc, resource)
}

// CleanupUsers removes the users from resource the way they would leave it
// themselves: reservations and slots are released first so the next users in
// line are promoted, then the remaining tickets are pulled.
func (s *QueueService) CleanupUsers(ctx context.Context, resource *domain.Resource, userIDs []string, source string) CleanupOutcome {
	outcome := CleanupOutcome{ResourceID: resource.ID}
	for _, status := range []domain.StatusCode{domain.StatusAwaitingConfirmation, domain.StatusActive} {
		releases, err := s.ClearOutQueueDependantTickets(ctx, resource, userIDs, status)
		if err != nil {
			outcome.Err = err
			break
		}
		outcome.Releases = append(outcome.Releases, releases...)
	}
	if outcome.Err == nil {
		outcome.Err = s.RemoveUsersFromQueue(ctx, resource.ID, userIDs)
	}

	result := "ok"
	if outcome.Failed() {
		result = "failed"
		s.logger.Warn("resource cleanup incomplete",
			zap.String("resource_id", resource.ID),
			zap.Strings("user_ids", userIDs),
			zap.String("source", source),
			zap.Error(outcome.Err),
		)
	}
	s.metrics.ObserveCleanup(source, result)
	return outcome
}

// ExpireAwaitingConfirmations releases reservations that were not confirmed
// within timeout.
func (s *QueueService) ExpireAwaitingConfirmations(ctx context.Context, timeout time.Duration) ([]ReleaseOutcome, error) {
	resources, err := s.store.Repositories().Resources.ListAwaitingConfirmation(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-timeout)
	var outcomes []ReleaseOutcome
	for i := range resources {
		resource := &resources[i]
		ticket := ledger.AwaitingTicket(resource.Tickets)
		if ticket == nil || ledger.CurrentStatus(ticket).Timestamp.After(cutoff) {
			continue
		}
		outcome := s.releaseInOwnTransaction(ctx, resource.ID, ticket.User.ID, domain.StatusAwaitingConfirmation, TriggerTimeout)
		if outcome.Released {
			s.metrics.ObserveExpiredAwaiting()
			s.logger.Info("awaiting confirmation expired",
				zap.String("resource_id", resource.ID),
				zap.String("user_id", ticket.User.ID),
			)
		} else {
			s.logger.Warn("awaiting confirmation expiry failed",
				zap.String("resource_id", resource.ID),
				zap.String("user_id", ticket.User.ID),
				zap.Error(outcome.Err),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// CreateResource creates a resource administered by actor, with a ticket for
// every invited user.
func (s *QueueService) CreateResource(ctx context.Context, actor *domain.User, input CreateResourceInput) (*ResourceCard, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	if input.MaxActiveTickets < 1 {
		return nil, apperrors.NewValidationError("maxActiveTickets must be at least 1", nil)
	}

	var resource *domain.Resource
	err := s.tx.run(ctx, "queue.create_resource", func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		resource = &domain.Resource{
			ID:                   uuid.NewString(),
			Name:                 name,
			Description:          strings.TrimSpace(input.Description),
			MaxActiveTickets:     input.MaxActiveTickets,
			CreatedBy:            domain.Creator{UserID: actor.ID, Username: actor.Username},
			CreationDate:         now,
			LastModificationDate: now,
		}
		resource.Tickets = append(resource.Tickets, newTicket(actor, domain.RoleResourceAdmin, now))
		if err := addTickets(ctx, repos, resource, input.Users, now); err != nil {
			return err
		}
		return repos.Resources.Create(ctx, resource)
	})
	if err != nil {
		return nil, toDomainError(err, "user")
	}
	s.logger.Info("resource created", zap.String("resource_id", resource.ID), zap.String("user_id", actor.ID))
	return BuildResourceCard(resource, actor.ID), nil
}

// AddResourceUsers invites users to a resource. Users that already hold a live
// ticket are left unchanged.
func (s *QueueService) AddResourceUsers(ctx context.Context, actor *domain.User, resourceID string, users []ResourceUserInput) (*ResourceCard, error) {
	lock, unlock := s.views.lock(ctx)
	defer unlock()

	var card *ResourceCard
	err := s.tx.run(ctx, "queue.add_users", func(ctx context.Context, repos repository.Repositories) error {
		resource, err := repos.Resources.GetByID(ctx, resourceID)
		if err != nil {
			return err
		}
		if err := requireResourceAdmin(resource, actor); err != nil {
			return err
		}
		now := s.now()
		if err := addTickets(ctx, repos, resource, users, now); err != nil {
			return err
		}
		resource.LastModificationDate = now
		if err := repos.Resources.Save(ctx, resource); err != nil {
			return err
		}
		card = BuildResourceCard(resource, actor.ID)
		return nil
	})
	if err != nil {
		return nil, toDomainError(err, "resource")
	}
	s.views.invalidate(ctx, lock, cache.Scope(cache.TypeResourceCard, resourceID))
	return card, nil
}

// RemoveResourceUsers evicts users from a resource. Releases are best-effort;
// the returned outcome lists what failed.
func (s *QueueService) RemoveResourceUsers(ctx context.Context, actor *domain.User, resourceID string, userIDs []string) (*CleanupOutcome, error) {
	if len(userIDs) == 0 {
		return nil, apperrors.NewValidationError("userIds must not be empty", nil)
	}
	if !guard.HasGlobalAdminAccess(actor) {
		isAdmin, err := s.guard.HasRole(ctx, actor.ID, resourceID, domain.RoleResourceAdmin)
		if err != nil {
			return nil, toDomainError(err, "resource")
		}
		if !isAdmin {
			return nil, toDomainError(ErrInsufficientRole, "resource")
		}
	}
	resource, err := s.store.Repositories().Resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, toDomainError(err, "resource")
	}
	outcome := s.CleanupUsers(ctx, resource, userIDs, "eviction")
	if outcome.Err != nil {
		return &outcome, toDomainError(outcome.Err, "resource")
	}
	return &outcome, nil
}

// GetResourceCard returns the resource as seen by the target user, from the
// response cache when possible.
func (s *QueueService) GetResourceCard(ctx context.Context, actor *domain.User, resourceID string, targetUserID *string) (*ResourceCard, error) {
	userID := actor.ID
	if targetUserID != nil && *targetUserID != "" {
		id, err := guard.TargetUserID(actor, targetUserID)
		if err != nil {
			return nil, toDomainError(err, "user")
		}
		userID = id
	}

	key := cardKey(resourceID, userID)
	var cached ResourceCard
	if s.views.get(ctx, key, &cached) {
		return &cached, nil
	}

	resource, err := s.store.Repositories().Resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, toDomainError(err, "resource")
	}
	if userTicket(resource, userID) == nil && !guard.HasGlobalAdminAccess(actor) {
		return nil, toDomainError(ErrInsufficientRole, "resource")
	}
	card := BuildResourceCard(resource, userID)
	s.views.set(ctx, key, card)
	return card, nil
}

// CheckTransition reports whether RequestTransition would accept target for
// the target user right now. It changes nothing.
func (s *QueueService) CheckTransition(ctx context.Context, actor *domain.User, resourceID string, target domain.StatusCode, targetUserID *string) (guard.Decision, error) {
	if !target.Valid() {
		return guard.Decision{}, apperrors.NewValidationError("unknown target status", map[string]any{"targetStatus": target})
	}
	userID, err := guard.TargetUserID(actor, targetUserID)
	if err != nil {
		return guard.Decision{}, toDomainError(err, "user")
	}
	decision, err := s.guard.CanTransition(ctx, userID, resourceID, target)
	if err != nil {
		return guard.Decision{}, toDomainError(err, "resource")
	}
	if err := admissible(decision, target); err != nil {
		decision.Allowed = false
		decision.Reason = rootMessage(err)
	}
	return decision, nil
}

func requireResourceAdmin(resource *domain.Resource, actor *domain.User) error {
	if guard.HasGlobalAdminAccess(actor) || guard.HasRole(resource, actor.ID, domain.RoleResourceAdmin) {
		return nil
	}
	return ErrInsufficientRole
}

func newTicket(user *domain.User, role domain.LocalRole, now time.Time) domain.Ticket {
	return domain.Ticket{
		ID:           uuid.NewString(),
		User:         domain.TicketUser{ID: user.ID, Username: user.Username, Role: role},
		CreationDate: now,
		Statuses:     []domain.StatusEntry{},
	}
}

func addTickets(ctx context.Context, repos repository.Repositories, resource *domain.Resource, users []ResourceUserInput, now time.Time) error {
	for _, in := range users {
		role := in.Role
		if role == "" {
			role = domain.RoleResourceUser
		}
		if !role.Valid() {
			return apperrors.NewValidationError("unknown role", map[string]any{"role": in.Role})
		}
		if ledger.LiveTicket(resource.Tickets, in.UserID) != nil {
			continue
		}
		user, err := repos.Users.GetByID(ctx, in.UserID)
		if err != nil {
			return err
		}
		resource.Tickets = append(resource.Tickets, newTicket(user, role, now))
	}
	return nil
}
