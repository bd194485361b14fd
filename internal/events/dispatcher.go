package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Publisher sends events to their per-user channel.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// redisPublisher publishes JSON encoded events over Redis pub/sub.
type redisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher creates a publisher backed by Redis.
func NewRedisPublisher(client redis.UniversalClient) Publisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(event.Type, event.UserID), payload).Err()
}

// Dispatcher is a synchronous in-process publisher with per-channel subscribers.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string][]EventHandler)}
}

// Publish synchronously invokes the handlers subscribed to the event's channel.
// The first handler error is returned after all handlers ran.
func (d *Dispatcher) Publish(ctx context.Context, event Event) error {
	channel := Channel(event.Type, event.UserID)
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[channel]...)
	d.mu.RUnlock()

	var first error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Subscribe registers a handler for one user's events of the given type.
func (d *Dispatcher) Subscribe(eventType EventType, userID string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	channel := Channel(eventType, userID)
	d.listeners[channel] = append(d.listeners[channel], handler)
}
