package domain

import "time"

// Creator identifies the user that created a resource.
type Creator struct {
	UserID   string `json:"userId" bson:"_id"`
	Username string `json:"username" bson:"username"`
}

// Resource is a shared entity that at most MaxActiveTickets users may hold at once.
type Resource struct {
	ID                   string    `json:"id" bson:"_id"`
	Name                 string    `json:"name" bson:"name"`
	Description          string    `json:"description" bson:"description"`
	MaxActiveTickets     int       `json:"maxActiveTickets" bson:"maxActiveTickets"`
	ActiveUserCount      int       `json:"activeUserCount" bson:"activeUserCount"`
	CreatedBy            Creator   `json:"createdBy" bson:"createdBy"`
	Tickets              []Ticket  `json:"tickets" bson:"tickets"`
	CreationDate         time.Time `json:"creationDate" bson:"creationDate"`
	LastModificationDate time.Time `json:"lastModificationDate" bson:"lastModificationDate"`
}

// Ticket returns the ticket with the given id, or nil.
// The pointer aliases the resource's ticket slice.
func (r *Resource) Ticket(id string) *Ticket {
	for i := range r.Tickets {
		if r.Tickets[i].ID == id {
			return &r.Tickets[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	out := *r
	out.Tickets = make([]Ticket, len(r.Tickets))
	for i, t := range r.Tickets {
		t.Statuses = cloneStatuses(t.Statuses)
		out.Tickets[i] = t
	}
	return &out
}

func cloneStatuses(in []StatusEntry) []StatusEntry {
	out := make([]StatusEntry, len(in))
	for i, e := range in {
		if e.QueuePosition != nil {
			e.QueuePosition = Position(*e.QueuePosition)
		}
		out[i] = e
	}
	return out
}
