package events

import (
	"time"

	"github.com/spec-kit/resource-queue/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventResourceReadyToPick EventType = "RESOURCE_READY_TO_PICK"
)

// Channel returns the per-user pub/sub channel for an event type.
func Channel(eventType EventType, userID string) string {
	return string(eventType) + "_" + userID
}

// Event represents a domain event addressed to one user.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"userId"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ResourceReadyPayload carries the notification that reserved a slot for the user.
type ResourceReadyPayload struct {
	Notifications []domain.Notification `json:"myNotificationDataSub"`
}
