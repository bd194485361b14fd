package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/auth"
	"github.com/spec-kit/resource-queue/internal/cache"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/events"
	"github.com/spec-kit/resource-queue/internal/ledger"
	"github.com/spec-kit/resource-queue/internal/observability"
	"github.com/spec-kit/resource-queue/internal/push"
	"github.com/spec-kit/resource-queue/internal/repository"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

type fakePusher struct {
	mu   sync.Mutex
	sent map[string][][]byte
	errs map[string]error
}

var _ push.Pusher = (*fakePusher)(nil)

func newFakePusher() *fakePusher {
	return &fakePusher{sent: map[string][][]byte{}, errs: map[string]error{}}
}

func (p *fakePusher) Send(_ context.Context, sub domain.WebPushSubscription, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[sub.Endpoint]; err != nil {
		return err
	}
	p.sent[sub.Endpoint] = append(p.sent[sub.Endpoint], payload)
	return nil
}

func (p *fakePusher) count(endpoint string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[endpoint])
}

// faultyStore wraps a store and injects failures: the first conflicts
// transactions fail with ErrConflict, and Save of a listed resource fails
// while its budget lasts.
type faultyStore struct {
	repository.Store

	mu        sync.Mutex
	conflicts int
	saveFails map[string]int
}

var errInjected = errors.New("injected store failure")

func (s *faultyStore) Repositories() repository.Repositories {
	return s.wrap(s.Store.Repositories())
}

func (s *faultyStore) WithTransaction(ctx context.Context, fn repository.TxFunc) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return errors.Join(repository.ErrConflict, errors.New("write conflict"))
	}
	s.mu.Unlock()
	return s.Store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return fn(ctx, s.wrap(repos))
	})
}

func (s *faultyStore) wrap(repos repository.Repositories) repository.Repositories {
	repos.Resources = &faultyResources{ResourceRepository: repos.Resources, store: s}
	return repos
}

func (s *faultyStore) failSave(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveFails[id] > 0 {
		s.saveFails[id]--
		return true
	}
	return false
}

type faultyResources struct {
	repository.ResourceRepository
	store *faultyStore
}

func (r *faultyResources) Save(ctx context.Context, resource *domain.Resource) error {
	if r.store.failSave(resource.ID) {
		return errInjected
	}
	return r.ResourceRepository.Save(ctx, resource)
}

type harness struct {
	ctx        context.Context
	store      *faultyStore
	memory     *repository.MemoryStore
	dispatcher *events.Dispatcher
	pusher     *fakePusher
	cache      *cache.Memory
	sessions   auth.SessionStore
	tokens     *auth.TokenManager
	notifier   *NotificationService
	queue      *QueueService
	users      *UserService
	metrics    *observability.Metrics

	mu    sync.Mutex
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:        context.Background(),
		memory:     repository.NewMemoryStore(),
		dispatcher: events.NewInMemoryDispatcher(),
		pusher:     newFakePusher(),
		cache:      cache.NewMemory(),
		sessions:   auth.NewMemorySessionStore(),
		tokens:     auth.NewTokenManager("test-secret", 5),
		clock:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.metrics = observability.NewMetrics()
	h.store = &faultyStore{Store: h.memory, saveFails: map[string]int{}}
	logger := zap.NewNop()
	h.notifier = NewNotificationService(NotificationDependencies{
		Store:     h.store,
		Publisher: h.dispatcher,
		Pusher:    h.pusher,
		Cache:     h.cache,
		Logger:    logger,
		Metrics:   h.metrics,
	})
	h.queue = NewQueueService(QueueDependencies{
		Store:         h.store,
		Notifier:      h.notifier,
		Cache:         h.cache,
		CacheTTL:      time.Minute,
		Logger:        logger,
		Metrics:       h.metrics,
		TxMaxAttempts: 3,
		Clock:         h.now,
	})
	h.users = NewUserService(UserDependencies{
		Store:    h.store,
		Queue:    h.queue,
		Notifier: h.notifier,
		Tokens:   h.tokens,
		Sessions: h.sessions,
	})
	return h
}

// now returns a strictly increasing time so that history entries are ordered.
func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(time.Second)
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(d)
}

func (h *harness) user(t *testing.T, id string) *domain.User {
	t.Helper()
	user, err := h.users.CreateUser(h.ctx, CreateUserInput{
		ID:       id,
		Username: id,
		Name:     id,
		Email:    id + "@example.com",
	})
	require.NoError(t, err)
	return user
}

func (h *harness) admin(t *testing.T, id string) *domain.User {
	t.Helper()
	user, err := h.users.CreateUser(h.ctx, CreateUserInput{
		ID:         id,
		Username:   id,
		Email:      id + "@example.com",
		GlobalRole: domain.GlobalRoleAdmin,
	})
	require.NoError(t, err)
	return user
}

func (h *harness) resource(t *testing.T, creator *domain.User, max int, members ...*domain.User) string {
	t.Helper()
	input := CreateResourceInput{Name: "printer", MaxActiveTickets: max}
	for _, m := range members {
		input.Users = append(input.Users, ResourceUserInput{UserID: m.ID})
	}
	card, err := h.queue.CreateResource(h.ctx, creator, input)
	require.NoError(t, err)
	return card.ResourceID
}

func (h *harness) transition(actor *domain.User, resourceID string, target domain.StatusCode) (*ResourceCard, error) {
	return h.queue.RequestTransition(h.ctx, actor, TransitionRequest{ResourceID: resourceID, TargetStatus: target})
}

func (h *harness) mustTransition(t *testing.T, actor *domain.User, resourceID string, target domain.StatusCode) *ResourceCard {
	t.Helper()
	card, err := h.transition(actor, resourceID, target)
	require.NoError(t, err)
	return card
}

func (h *harness) load(t *testing.T, resourceID string) *domain.Resource {
	t.Helper()
	resource, err := h.memory.Repositories().Resources.GetByID(h.ctx, resourceID)
	require.NoError(t, err)
	return resource
}

func (h *harness) status(t *testing.T, resourceID, userID string) domain.StatusEntry {
	t.Helper()
	ticket := ledger.LiveTicket(h.load(t, resourceID).Tickets, userID)
	require.NotNil(t, ticket, "user %s holds no live ticket", userID)
	return ledger.CurrentStatus(ticket)
}

func (h *harness) notifications(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	list, err := h.memory.Repositories().Notifications.ListByUser(h.ctx, userID)
	require.NoError(t, err)
	return list
}

func assertPosition(t *testing.T, entry domain.StatusEntry, code domain.StatusCode, pos int) {
	t.Helper()
	assert.Equal(t, code, entry.StatusCode)
	if assert.NotNil(t, entry.QueuePosition) {
		assert.Equal(t, pos, *entry.QueuePosition)
	}
}

// assertConsistent checks the queue invariants that every committed state must hold.
func assertConsistent(t *testing.T, resource *domain.Resource) {
	t.Helper()
	positions := ledger.QueuePositions(resource.Tickets)
	for i, pos := range positions {
		assert.Equal(t, i+1, pos, "queue positions must be dense and start at 1: %v", positions)
	}
	assert.Equal(t, ledger.ActiveCount(resource.Tickets), resource.ActiveUserCount, "active user count")
	assert.LessOrEqual(t, resource.ActiveUserCount, resource.MaxActiveTickets)

	awaiting := ledger.TicketsInStatus(resource.Tickets, domain.StatusAwaitingConfirmation)
	assert.LessOrEqual(t, len(awaiting), 1, "at most one awaiting ticket")
	if len(awaiting) == 1 {
		pos, ok := ledger.QueuePosition(awaiting[0])
		assert.True(t, ok)
		assert.Equal(t, 1, pos, "awaiting ticket holds the queue front")
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *apperrors.DomainError
	if assert.ErrorAs(t, err, &de) {
		assert.Equal(t, code, de.Code, de.Message)
	}
}

// counterValue sums a counter family gathered from the harness registry.
func (h *harness) counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := h.metrics.Registry.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
