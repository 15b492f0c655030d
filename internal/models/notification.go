package models

import (
	"time"
)

// NotificationType classifies a notification for display purposes.
type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeWarning NotificationType = "warning"
	TypeSuccess NotificationType = "success"
	TypeError   NotificationType = "error"
)

// Valid reports whether the type is one of the allowed values.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeInfo, TypeWarning, TypeSuccess, TypeError:
		return true
	}
	return false
}

// Priority is the delivery priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status tracks the lifecycle of a notification row.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusCancelled:
		return true
	}
	return false
}

// Notification is the content of one announcement. It is immutable after
// creation except for Status; admin edits go through a dedicated update path.
// Global notifications (target "all" or "role:*") are stored once and overlaid
// with per-user dismissals instead of being duplicated per recipient.
type Notification struct {
	ID           string           `bson:"_id,omitempty" json:"id"`
	Title        string           `bson:"title" json:"title"`
	Message      string           `bson:"message" json:"message"`
	Type         NotificationType `bson:"type" json:"type"`
	Priority     Priority         `bson:"priority" json:"priority"`
	SenderID     string           `bson:"sender_id" json:"sender_id"`
	Target       string           `bson:"target" json:"target"` // "user:<id>", "role:<role>", "list:<id,...>" or "all"
	TemplateName string           `bson:"template_name,omitempty" json:"template_name,omitempty"`
	IsGlobal     bool             `bson:"is_global" json:"is_global"`
	Status       Status           `bson:"status" json:"status"`
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	ScheduledFor *time.Time       `bson:"scheduled_for,omitempty" json:"scheduled_for,omitempty"`
}

// NotificationDelivery is the per-recipient state row. One row exists per
// (notification, user) pair for non-global notifications, written at fan-out
// time. Delete keeps the read/archive flags so restore returns the row to its
// exact pre-delete state.
type NotificationDelivery struct {
	ID             string     `bson:"_id,omitempty" json:"-"`
	NotificationID string     `bson:"notification_id" json:"notification_id"`
	UserID         string     `bson:"user_id" json:"user_id"`
	IsRead         bool       `bson:"is_read" json:"is_read"`
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
	IsArchived     bool       `bson:"is_archived" json:"is_archived"`
	ArchivedAt     *time.Time `bson:"archived_at,omitempty" json:"archived_at,omitempty"`
	IsDeleted      bool       `bson:"is_deleted" json:"is_deleted"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
}

// NotificationDismissal hides a global notification from one user's feed.
// Created lazily on first dismissal; its presence is the only per-user state
// a global notification carries.
type NotificationDismissal struct {
	ID             string    `bson:"_id,omitempty" json:"-"`
	NotificationID string    `bson:"notification_id" json:"notification_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	DismissedAt    time.Time `bson:"dismissed_at" json:"dismissed_at"`
}

// UserNotification is the feed view of a notification from one user's
// perspective: the announcement plus this user's delivery state.
type UserNotification struct {
	Notification
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	IsArchived bool       `json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	IsDeleted  bool       `json:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// ListFilter narrows a user's notification feed. The zero value is the default
// feed: no archived, no deleted, every type and priority.
type ListFilter struct {
	IncludeArchived bool
	IncludeDeleted  bool
	Type            NotificationType
	Priority        Priority
}

// NotificationStats summarizes a user's notification state counts.
type NotificationStats struct {
	Total    int `json:"total"`
	Unread   int `json:"unread"`
	Read     int `json:"read"`
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
	Active   int `json:"active"`
}

// AdminNotification pairs a notification with its recipient state rollup for
// the admin management view.
type AdminNotification struct {
	Notification
	RecipientStats NotificationStats `json:"recipient_stats"`
}

// AdminFilter narrows the admin notification listing.
type AdminFilter struct {
	Type     NotificationType
	Target   string
	Status   Status
	SenderID string
}

// Recipient is one row of the admin recipient detail view.
type Recipient struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	Email      string     `json:"email,omitempty"`
	Role       string     `json:"role,omitempty"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	IsArchived bool       `json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	IsDeleted  bool       `json:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}
