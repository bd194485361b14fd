package dto

import (
	"time"

	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/service"
)

// CreateUserRequest payload for admin-created accounts.
type CreateUserRequest struct {
	ID         string            `json:"id"`
	Username   string            `json:"username"`
	Name       string            `json:"name"`
	Surname    string            `json:"surname"`
	Email      string            `json:"email"`
	GlobalRole domain.GlobalRole `json:"globalRole"`
}

// DeleteUserRequest payload.
type DeleteUserRequest struct {
	DeleteAll bool    `json:"deleteAll"`
	UserID    *string `json:"userId"`
}

// SubscriptionRequest is a browser PushSubscription as serialised by the client.
type SubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		Auth   string `json:"auth"`
		P256dh string `json:"p256dh"`
	} `json:"keys"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse is the account as shown to its owner or an admin.
type UserResponse struct {
	ID                string            `json:"id"`
	Username          string            `json:"username"`
	Name              string            `json:"name"`
	Surname           string            `json:"surname"`
	Email             string            `json:"email"`
	GlobalRole        domain.GlobalRole `json:"globalRole"`
	SubscriptionCount int               `json:"subscriptionCount"`
	CreationDate      time.Time         `json:"creationDate"`
}

// DeletionResponse summarises a user deletion.
type DeletionResponse struct {
	UserID               string            `json:"userId"`
	DeletedResources     []string          `json:"deletedResources"`
	DeletedNotifications int64             `json:"deletedNotifications"`
	Cleanup              []CleanupResponse `json:"cleanup"`
	Notified             int               `json:"notified"`
}

// ToCreateUserInput maps the request to service input.
func (r CreateUserRequest) ToCreateUserInput() service.CreateUserInput {
	return service.CreateUserInput{
		ID:         r.ID,
		Username:   r.Username,
		Name:       r.Name,
		Surname:    r.Surname,
		Email:      r.Email,
		GlobalRole: r.GlobalRole,
	}
}

// ToSubscription maps the request to a domain subscription.
func (r SubscriptionRequest) ToSubscription() domain.WebPushSubscription {
	return domain.WebPushSubscription{
		Endpoint: r.Endpoint,
		Keys:     domain.WebPushKeys{Auth: r.Keys.Auth, P256dh: r.Keys.P256dh},
	}
}

// NewUserResponse renders a user without its push secrets.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                u.ID,
		Username:          u.Username,
		Name:              u.Name,
		Surname:           u.Surname,
		Email:             u.Email,
		GlobalRole:        u.GlobalRole,
		SubscriptionCount: len(u.WebPushSubscriptions),
		CreationDate:      u.CreationDate,
	}
}

// NewTokenResponse renders an issued token.
func NewTokenResponse(token string, session domain.Session) TokenResponse {
	return TokenResponse{Token: token, SessionID: session.ID, ExpiresAt: session.ExpiresAt}
}

// NewDeletionResponse renders a deletion report.
func NewDeletionResponse(r *service.DeletionReport) DeletionResponse {
	resp := DeletionResponse{
		UserID:               r.UserID,
		DeletedResources:     r.DeletedResources,
		DeletedNotifications: r.DeletedNotifications,
		Cleanup:              make([]CleanupResponse, 0, len(r.Cleanup)),
	}
	if resp.DeletedResources == nil {
		resp.DeletedResources = []string{}
	}
	for _, c := range r.Cleanup {
		resp.Cleanup = append(resp.Cleanup, NewCleanupResponse(c))
	}
	for _, d := range r.Deliveries {
		if d.Published || len(d.Pushes) > 0 {
			resp.Notified++
		}
	}
	return resp
}
