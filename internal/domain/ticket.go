package domain

import "time"

// StatusCode enumerates lifecycle states for resource tickets.
type StatusCode string

const (
	StatusInitialized          StatusCode = "INITIALIZED"
	StatusRequesting           StatusCode = "REQUESTING"
	StatusQueued               StatusCode = "QUEUED"
	StatusAwaitingConfirmation StatusCode = "AWAITING_CONFIRMATION"
	StatusActive               StatusCode = "ACTIVE"
	StatusInactive             StatusCode = "INACTIVE"
	StatusRevoked              StatusCode = "REVOKED"
)

// Valid reports whether s is a known status code.
func (s StatusCode) Valid() bool {
	switch s {
	case StatusInitialized, StatusRequesting, StatusQueued, StatusAwaitingConfirmation,
		StatusActive, StatusInactive, StatusRevoked:
		return true
	}
	return false
}

// HoldsQueuePosition reports whether entries with this status carry a queue position.
func (s StatusCode) HoldsQueuePosition() bool {
	return s == StatusQueued || s == StatusAwaitingConfirmation
}

// LocalRole is a user's role on a single resource.
type LocalRole string

const (
	RoleResourceUser  LocalRole = "RESOURCE_USER"
	RoleResourceAdmin LocalRole = "RESOURCE_ADMIN"
)

// Valid reports whether r is a known local role.
func (r LocalRole) Valid() bool {
	return r == RoleResourceUser || r == RoleResourceAdmin
}

// StatusEntry is one element of a ticket's append-only status history.
// QueuePosition is nil unless the status is QUEUED or AWAITING_CONFIRMATION.
type StatusEntry struct {
	StatusCode    StatusCode `json:"statusCode" bson:"statusCode"`
	Timestamp     time.Time  `json:"timestamp" bson:"timestamp"`
	QueuePosition *int       `json:"queuePosition,omitempty" bson:"queuePosition,omitempty"`
}

// TicketUser is the denormalized owner of a ticket.
type TicketUser struct {
	ID       string    `json:"id" bson:"_id"`
	Username string    `json:"username" bson:"username"`
	Role     LocalRole `json:"role" bson:"role"`
}

// Ticket binds one user to one resource.
type Ticket struct {
	ID           string        `json:"id" bson:"_id"`
	User         TicketUser    `json:"user" bson:"user"`
	CreationDate time.Time     `json:"creationDate" bson:"creationDate"`
	Statuses     []StatusEntry `json:"statuses" bson:"statuses"`
}

// Position returns a pointer to a queue position value.
func Position(p int) *int {
	return &p
}
