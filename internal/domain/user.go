package domain

import "time"

// GlobalRole is an application-wide role independent of any resource.
type GlobalRole string

const (
	GlobalRoleUser  GlobalRole = "USER"
	GlobalRoleAdmin GlobalRole = "ADMIN"
)

// WebPushKeys holds the client keys of a web push subscription.
type WebPushKeys struct {
	Auth   string `json:"auth" bson:"auth"`
	P256dh string `json:"p256dh" bson:"p256dh"`
}

// WebPushSubscription is a registered browser push endpoint.
type WebPushSubscription struct {
	Endpoint string      `json:"endpoint" bson:"endpoint"`
	Keys     WebPushKeys `json:"keys" bson:"keys"`
}

// User is an account that can hold tickets on resources.
type User struct {
	ID                   string                `json:"id" bson:"_id"`
	Username             string                `json:"username" bson:"username"`
	Name                 string                `json:"name" bson:"name"`
	Surname              string                `json:"surname" bson:"surname"`
	Email                string                `json:"email" bson:"email"`
	GlobalRole           GlobalRole            `json:"globalRole" bson:"globalRole"`
	WebPushSubscriptions []WebPushSubscription `json:"webPushSubscriptions" bson:"webPushSubscriptions"`
	CreationDate         time.Time             `json:"creationDate" bson:"creationDate"`
}

// PublicUser is the subset of a user visible to other users.
type PublicUser struct {
	ID       string `json:"id" bson:"_id"`
	Username string `json:"username" bson:"username"`
	Name     string `json:"name" bson:"name"`
	Surname  string `json:"surname" bson:"surname"`
}

// Public projects the user to its public view.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Name: u.Name, Surname: u.Surname}
}
