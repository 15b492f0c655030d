package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nursdev/lms-notifications/internal/models"
)

// ErrNotFound is returned when a record the operation refers to does not
// exist. Callers translate it into their own error taxonomy.
var ErrNotFound = errors.New("record not found")

// NotificationStore is the record store contract the notification core is
// written against. The Mongo repositories implement it for deployments; the
// in-memory store implements it for tests and local development.
//
// State-transition methods return a matched flag instead of an error when the
// guarded update hit no row: MarkDeliveryRead and SetDeliveryArchived only
// touch rows with is_deleted=false, so a delete that won a race is reported
// as matched=false and the caller decides whether that is a no-op or NotFound.
type NotificationStore interface {
	// CreateWithDeliveries persists the notification and its delivery rows
	// atomically. Either everything commits or nothing does.
	CreateWithDeliveries(ctx context.Context, n *models.Notification, deliveries []*models.NotificationDelivery) error
	// ActivateWithDeliveries flips a scheduled notification to active and
	// writes its fan-out rows in the same transaction.
	ActivateWithDeliveries(ctx context.Context, id string, deliveries []*models.NotificationDelivery) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	GetNotificationsByIDs(ctx context.Context, ids []string) ([]models.Notification, error)
	ListNotifications(ctx context.Context, filter models.AdminFilter) ([]models.Notification, error)
	ListGlobalActive(ctx context.Context) ([]models.Notification, error)
	ListByStatus(ctx context.Context, status models.Status) ([]models.Notification, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]models.Notification, error)
	UpdateNotification(ctx context.Context, id string, fields map[string]interface{}) error
	SetStatus(ctx context.Context, id string, status models.Status) error
	// DeleteNotification removes the notification and cascades to its
	// delivery and dismissal rows.
	DeleteNotification(ctx context.Context, id string) error

	GetDelivery(ctx context.Context, notificationID, userID string) (*models.NotificationDelivery, error)
	ListDeliveriesForUser(ctx context.Context, userID string) ([]models.NotificationDelivery, error)
	ListDeliveriesForNotification(ctx context.Context, notificationID string) ([]models.NotificationDelivery, error)
	MarkDeliveryRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error)
	MarkAllDeliveriesRead(ctx context.Context, userID string, at time.Time) (int64, error)
	SetDeliveryArchived(ctx context.Context, notificationID, userID string, archived bool, at time.Time) (bool, error)
	SetDeliveryDeleted(ctx context.Context, notificationID, userID string, deleted bool, at time.Time) (bool, error)

	UpsertDismissal(ctx context.Context, notificationID, userID string, at time.Time) error
	RemoveDismissal(ctx context.Context, notificationID, userID string) (bool, error)
	ListDismissalsForUser(ctx context.Context, userID string) ([]models.NotificationDismissal, error)
}

// TemplateStore persists notification templates.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) (*models.NotificationTemplate, error)
	GetTemplateByName(ctx context.Context, name string) (*models.NotificationTemplate, error)
	ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error)
	UpdateTemplate(ctx context.Context, name string, fields map[string]interface{}) error
	DeleteTemplate(ctx context.Context, name string) error
}

// UserStore is the read-only projection of the user subsystem the target
// resolver needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	GetActiveUsersByRole(ctx context.Context, role string) ([]models.User, error)
	GetActiveUsers(ctx context.Context) ([]models.User, error)
}
