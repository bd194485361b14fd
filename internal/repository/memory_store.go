package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/spec-kit/resource-queue/internal/domain"
)

type memoryState struct {
	resources     map[string]*domain.Resource
	notifications map[string]domain.Notification
	users         map[string]*domain.User
}

func newMemoryState() *memoryState {
	return &memoryState{
		resources:     map[string]*domain.Resource{},
		notifications: map[string]domain.Notification{},
		users:         map[string]*domain.User{},
	}
}

func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	for id, r := range s.resources {
		out.resources[id] = r.Clone()
	}
	for id, n := range s.notifications {
		out.notifications[id] = n
	}
	for id, u := range s.users {
		out.users[id] = cloneUser(u)
	}
	return out
}

func cloneUser(u *domain.User) *domain.User {
	out := *u
	out.WebPushSubscriptions = append([]domain.WebPushSubscription(nil), u.WebPushSubscriptions...)
	return &out
}

// MemoryStore keeps all documents in process. Transactions run serially on a
// snapshot that replaces the live state only when the body succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// Repositories returns auto-committing repositories.
func (s *MemoryStore) Repositories() Repositories {
	return s.repositories(nil)
}

// WithTransaction runs fn against a private snapshot and commits it on success.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(ctx, s.repositories(snapshot)); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) repositories(tx *memoryState) Repositories {
	scope := &memoryScope{store: s, tx: tx}
	return Repositories{
		Resources:     &memoryResourceRepository{scope: scope},
		Notifications: &memoryNotificationRepository{scope: scope},
		Users:         &memoryUserRepository{scope: scope},
	}
}

type memoryScope struct {
	store *MemoryStore
	tx    *memoryState
}

// run calls fn with the state visible to this scope. Outside a transaction the
// store lock is held for the duration of the call.
func (c *memoryScope) run(fn func(*memoryState) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return fn(c.store.state)
}

type memoryResourceRepository struct {
	scope *memoryScope
}

func (r *memoryResourceRepository) Create(_ context.Context, resource *domain.Resource) error {
	return r.scope.run(func(s *memoryState) error {
		s.resources[resource.ID] = resource.Clone()
		return nil
	})
}

func (r *memoryResourceRepository) GetByID(_ context.Context, id string) (*domain.Resource, error) {
	var out *domain.Resource
	err := r.scope.run(func(s *memoryState) error {
		res, ok := s.resources[id]
		if !ok {
			return ErrNotFound
		}
		out = res.Clone()
		return nil
	})
	return out, err
}

func (r *memoryResourceRepository) Save(_ context.Context, resource *domain.Resource) error {
	return r.scope.run(func(s *memoryState) error {
		if _, ok := s.resources[resource.ID]; !ok {
			return ErrNotFound
		}
		s.resources[resource.ID] = resource.Clone()
		return nil
	})
}

func (r *memoryResourceRepository) list(match func(*domain.Resource) bool) ([]domain.Resource, error) {
	var out []domain.Resource
	err := r.scope.run(func(s *memoryState) error {
		for _, res := range s.resources {
			if match(res) {
				out = append(out, *res.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreationDate.Equal(out[j].CreationDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreationDate.Before(out[j].CreationDate)
	})
	return out, err
}

func (r *memoryResourceRepository) ListByUser(_ context.Context, userID string) ([]domain.Resource, error) {
	return r.list(func(res *domain.Resource) bool {
		for _, t := range res.Tickets {
			if t.User.ID == userID {
				return true
			}
		}
		return false
	})
}

func (r *memoryResourceRepository) ListCreatedBy(_ context.Context, userID string) ([]domain.Resource, error) {
	return r.list(func(res *domain.Resource) bool {
		return res.CreatedBy.UserID == userID
	})
}

func (r *memoryResourceRepository) ListAwaitingConfirmation(_ context.Context) ([]domain.Resource, error) {
	return r.list(func(res *domain.Resource) bool {
		for _, t := range res.Tickets {
			for _, e := range t.Statuses {
				if e.StatusCode == domain.StatusAwaitingConfirmation {
					return true
				}
			}
		}
		return false
	})
}

func (r *memoryResourceRepository) Delete(_ context.Context, ids []string) (int64, error) {
	var count int64
	err := r.scope.run(func(s *memoryState) error {
		for _, id := range ids {
			if _, ok := s.resources[id]; ok {
				delete(s.resources, id)
				count++
			}
		}
		return nil
	})
	return count, err
}

type memoryNotificationRepository struct {
	scope *memoryScope
}

func (r *memoryNotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	return r.scope.run(func(s *memoryState) error {
		s.notifications[n.ID] = *n
		return nil
	})
}

func (r *memoryNotificationRepository) ListByUser(_ context.Context, userID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.scope.run(func(s *memoryState) error {
		for _, n := range s.notifications {
			if n.User.ID == userID {
				out = append(out, n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, err
}

func (r *memoryNotificationRepository) deleteWhere(match func(domain.Notification) bool) (int64, error) {
	var count int64
	err := r.scope.run(func(s *memoryState) error {
		for id, n := range s.notifications {
			if match(n) {
				delete(s.notifications, id)
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *memoryNotificationRepository) DeleteByResourceAndUsers(_ context.Context, resourceID string, userIDs []string) (int64, error) {
	users := toSet(userIDs)
	return r.deleteWhere(func(n domain.Notification) bool {
		_, ok := users[n.User.ID]
		return ok && n.Resource.ID == resourceID
	})
}

func (r *memoryNotificationRepository) DeleteByResources(_ context.Context, resourceIDs []string) (int64, error) {
	resources := toSet(resourceIDs)
	return r.deleteWhere(func(n domain.Notification) bool {
		_, ok := resources[n.Resource.ID]
		return ok
	})
}

func (r *memoryNotificationRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	return r.deleteWhere(func(n domain.Notification) bool { return n.User.ID == userID })
}

type memoryUserRepository struct {
	scope *memoryScope
}

func (r *memoryUserRepository) Create(_ context.Context, user *domain.User) error {
	return r.scope.run(func(s *memoryState) error {
		s.users[user.ID] = cloneUser(user)
		return nil
	})
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.scope.run(func(s *memoryState) error {
		u, ok := s.users[id]
		if !ok {
			return ErrNotFound
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

func (r *memoryUserRepository) Search(_ context.Context, query string, limit int) ([]domain.PublicUser, error) {
	terms := strings.Fields(strings.ToLower(query))
	var out []domain.PublicUser
	err := r.scope.run(func(s *memoryState) error {
		for _, u := range s.users {
			haystack := strings.ToLower(u.Username + " " + u.Name + " " + u.Surname)
			for _, term := range terms {
				if strings.Contains(haystack, term) {
					out = append(out, u.Public())
					break
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if n := searchLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, err
}

func (r *memoryUserRepository) AddSubscription(_ context.Context, userID string, sub domain.WebPushSubscription) error {
	return r.scope.run(func(s *memoryState) error {
		u, ok := s.users[userID]
		if !ok {
			return ErrNotFound
		}
		for _, existing := range u.WebPushSubscriptions {
			if existing.Endpoint == sub.Endpoint {
				return nil
			}
		}
		u.WebPushSubscriptions = append(u.WebPushSubscriptions, sub)
		return nil
	})
}

func (r *memoryUserRepository) RemoveSubscription(_ context.Context, userID, endpoint string) error {
	return r.scope.run(func(s *memoryState) error {
		u, ok := s.users[userID]
		if !ok {
			return ErrNotFound
		}
		kept := u.WebPushSubscriptions[:0]
		for _, sub := range u.WebPushSubscriptions {
			if sub.Endpoint != endpoint {
				kept = append(kept, sub)
			}
		}
		u.WebPushSubscriptions = kept
		return nil
	})
}

func (r *memoryUserRepository) Delete(_ context.Context, id string) error {
	return r.scope.run(func(s *memoryState) error {
		if _, ok := s.users[id]; !ok {
			return ErrNotFound
		}
		delete(s.users, id)
		return nil
	})
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
