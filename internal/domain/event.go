// Package domain defines the activity events the notification pipeline fans out.
package domain

import (
	"encoding/json"
	"time"
)

// Category classifies an activity event for title/icon templating.
type Category string

const (
	CategoryProject  Category = "project"
	CategorySection  Category = "section"
	CategoryStaff    Category = "staff"
	CategoryMaterial Category = "material"
	CategoryLabor    Category = "labor"
	CategoryUnit     Category = "unit"
	CategoryBooking  Category = "booking"
	CategoryPayment  Category = "payment"
	CategoryGeneric  Category = "general"
)

// Action identifies what happened to the target entity.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionDeleted   Action = "deleted"
	ActionAssigned  Action = "assigned"
	ActionCompleted Action = "completed"
	ActionUsed      Action = "used"
)

// ActivityEvent is an immutable record of a domain activity (materials used,
// staff assigned, project completed, ...) consumed by the composer.
type ActivityEvent struct {
	EventID    string   `json:"event_id"`
	Category   Category `json:"category"`
	Action     Action   `json:"action"`
	ActorName  string   `json:"actor_name"`
	TargetName string   `json:"target_name"`
	ClientID   string   `json:"client_id"`
	ProjectID  string   `json:"project_id,omitempty"`

	// Quantity and Unit are set for material/labor usage events.
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`

	// Message is optional operator free text appended to the body.
	Message string `json:"message,omitempty"`

	// Data is extra payload forwarded verbatim to devices.
	Data map[string]string `json:"data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ToJSON converts the event to JSON bytes for the activity log sink.
func (e ActivityEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// UserType distinguishes the two account collections a recipient can come from.
type UserType string

const (
	UserTypeAdmin UserType = "admin"
	UserTypeStaff UserType = "staff"
)

// Recipient is a resolved user eligible to receive a notification for a given
// tenant/project. Ephemeral: computed per resolution request, never persisted.
type Recipient struct {
	UserID   string   `json:"userId"`
	UserType UserType `json:"userType"`
	ClientID string   `json:"clientId"`
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	Role     string   `json:"role,omitempty"`
	IsActive bool     `json:"isActive"`
}
