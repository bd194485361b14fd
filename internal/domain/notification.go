package domain

import "time"

const (
	TitleRefResourceAvailable       = "ResourceAvailableNotification"
	DescriptionRefResourceAvailable = "ResourceAvailableDescriptionNotification"
)

// NotificationUser is the denormalized recipient of a notification.
type NotificationUser struct {
	ID       string `json:"id" bson:"_id"`
	Username string `json:"username" bson:"username"`
}

// NotificationResource is the denormalized resource a notification refers to.
type NotificationResource struct {
	ID        string  `json:"id" bson:"_id"`
	Name      string  `json:"name" bson:"name"`
	CreatedBy Creator `json:"createdBy" bson:"createdBy"`
}

// Notification tells a user that a resource slot is reserved for them.
type Notification struct {
	ID             string               `json:"id" bson:"_id"`
	TicketStatus   StatusCode           `json:"ticketStatus" bson:"ticketStatus"`
	User           NotificationUser     `json:"user" bson:"user"`
	TitleRef       string               `json:"titleRef" bson:"titleRef"`
	DescriptionRef string               `json:"descriptionRef" bson:"descriptionRef"`
	Resource       NotificationResource `json:"resource" bson:"resource"`
	Timestamp      time.Time            `json:"timestamp" bson:"timestamp"`
}
