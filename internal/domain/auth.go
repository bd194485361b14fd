package domain

import "time"

// Session describes an issued access token bound to a server-side session id.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}
