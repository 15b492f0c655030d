package models

import (
	"time"
)

// NotificationTemplate is an admin-managed reusable title/message pair.
// Patterns reference variables as "{name}"; Variables lists every placeholder
// the patterns are allowed to use.
type NotificationTemplate struct {
	ID             string           `bson:"_id,omitempty" json:"id"`
	Name           string           `bson:"name" json:"name"` // unique
	TitlePattern   string           `bson:"title_pattern" json:"title_pattern"`
	MessagePattern string           `bson:"message_pattern" json:"message_pattern"`
	Type           NotificationType `bson:"type" json:"type"`
	Priority       Priority         `bson:"priority" json:"priority"`
	Variables      []string         `bson:"variables" json:"variables"`
	CreatedBy      string           `bson:"created_by" json:"created_by"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at" json:"updated_at"`
}
