package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepository is the Mongo-backed implementation of
// NotificationStore. Notifications, deliveries and dismissals live in
// separate collections joined by notification_id/user_id.
type NotificationRepository struct {
	db         *mongo.Database
	notifs     *mongo.Collection
	deliveries *mongo.Collection
	dismissals *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		db:         db,
		notifs:     db.Collection("notifications"),
		deliveries: db.Collection("notification_deliveries"),
		dismissals: db.Collection("notification_dismissals"),
	}
}

// CreateWithDeliveries inserts the notification row and all fan-out rows in a
// single transaction so a partial fan-out never becomes visible.
func (r *NotificationRepository) CreateWithDeliveries(ctx context.Context, n *models.Notification, deliveries []*models.NotificationDelivery) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.notifs.InsertOne(sc, n); err != nil {
			return nil, err
		}
		if len(deliveries) > 0 {
			docs := make([]interface{}, 0, len(deliveries))
			for _, d := range deliveries {
				if d.CreatedAt.IsZero() {
					d.CreatedAt = n.CreatedAt
				}
				docs = append(docs, d)
			}
			if _, err := r.deliveries.InsertMany(sc, docs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to insert notification with deliveries")
		return fmt.Errorf("failed to create notification: %v", err)
	}
	return nil
}

// ActivateWithDeliveries flips a scheduled notification to active and writes
// its fan-out rows atomically.
func (r *NotificationRepository) ActivateWithDeliveries(ctx context.Context, id string, deliveries []*models.NotificationDelivery) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.notifs.UpdateOne(sc,
			bson.M{"_id": id, "status": models.StatusScheduled},
			bson.M{"$set": bson.M{"status": models.StatusActive}})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}
		if len(deliveries) > 0 {
			docs := make([]interface{}, 0, len(deliveries))
			for _, d := range deliveries {
				if d.CreatedAt.IsZero() {
					d.CreatedAt = time.Now()
				}
				docs = append(docs, d)
			}
			if _, err := r.deliveries.InsertMany(sc, docs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if err == ErrNotFound {
			return ErrNotFound
		}
		logrus.WithError(err).WithField("notificationID", id).Error("Failed to activate scheduled notification")
		return fmt.Errorf("failed to activate notification: %v", err)
	}
	return nil
}

func (r *NotificationRepository) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.notifs.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification: %v", err)
	}
	return &n, nil
}

func (r *NotificationRepository) GetNotificationsByIDs(ctx context.Context, ids []string) ([]models.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.notifs.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications by ids: %v", err)
	}
	defer cursor.Close(ctx)

	var notifs []models.Notification
	if err := cursor.All(ctx, &notifs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %v", err)
	}
	return notifs, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, filter models.AdminFilter) ([]models.Notification, error) {
	query := bson.M{}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Target != "" {
		query["target"] = filter.Target
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.SenderID != "" {
		query["sender_id"] = filter.SenderID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.notifs.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %v", err)
	}
	defer cursor.Close(ctx)

	var notifs []models.Notification
	if err := cursor.All(ctx, &notifs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %v", err)
	}
	return notifs, nil
}

func (r *NotificationRepository) ListGlobalActive(ctx context.Context) ([]models.Notification, error) {
	filter := bson.M{"is_global": true, "status": models.StatusActive}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.notifs.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch global notifications: %v", err)
	}
	defer cursor.Close(ctx)

	var notifs []models.Notification
	if err := cursor.All(ctx, &notifs); err != nil {
		return nil, fmt.Errorf("failed to decode global notifications: %v", err)
	}
	return notifs, nil
}

func (r *NotificationRepository) ListByStatus(ctx context.Context, status models.Status) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.notifs.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications by status: %v", err)
	}
	defer cursor.Close(ctx)

	var notifs []models.Notification
	if err := cursor.All(ctx, &notifs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %v", err)
	}
	return notifs, nil
}

func (r *NotificationRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]models.Notification, error) {
	filter := bson.M{
		"status":        models.StatusScheduled,
		"scheduled_for": bson.M{"$lte": now},
	}
	cursor, err := r.notifs.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due scheduled notifications: %v", err)
	}
	defer cursor.Close(ctx)

	var notifs []models.Notification
	if err := cursor.All(ctx, &notifs); err != nil {
		return nil, fmt.Errorf("failed to decode scheduled notifications: %v", err)
	}
	return notifs, nil
}

func (r *NotificationRepository) UpdateNotification(ctx context.Context, id string, fields map[string]interface{}) error {
	res, err := r.notifs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		logrus.WithError(err).WithField("notificationID", id).Error("Failed to update notification")
		return fmt.Errorf("failed to update notification: %v", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) SetStatus(ctx context.Context, id string, status models.Status) error {
	return r.UpdateNotification(ctx, id, map[string]interface{}{"status": status})
}

// DeleteNotification removes the notification row and cascades to deliveries
// and dismissals.
func (r *NotificationRepository) DeleteNotification(ctx context.Context, id string) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.notifs.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, ErrNotFound
		}
		if _, err := r.deliveries.DeleteMany(sc, bson.M{"notification_id": id}); err != nil {
			return nil, err
		}
		if _, err := r.dismissals.DeleteMany(sc, bson.M{"notification_id": id}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if err == ErrNotFound {
			return ErrNotFound
		}
		logrus.WithError(err).WithField("notificationID", id).Error("Failed to delete notification")
		return fmt.Errorf("failed to delete notification: %v", err)
	}
	return nil
}

func (r *NotificationRepository) GetDelivery(ctx context.Context, notificationID, userID string) (*models.NotificationDelivery, error) {
	var d models.NotificationDelivery
	err := r.deliveries.FindOne(ctx, bson.M{"notification_id": notificationID, "user_id": userID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delivery: %v", err)
	}
	return &d, nil
}

func (r *NotificationRepository) ListDeliveriesForUser(ctx context.Context, userID string) ([]models.NotificationDelivery, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.deliveries.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deliveries: %v", err)
	}
	defer cursor.Close(ctx)

	var deliveries []models.NotificationDelivery
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %v", err)
	}
	return deliveries, nil
}

func (r *NotificationRepository) ListDeliveriesForNotification(ctx context.Context, notificationID string) ([]models.NotificationDelivery, error) {
	cursor, err := r.deliveries.Find(ctx, bson.M{"notification_id": notificationID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deliveries: %v", err)
	}
	defer cursor.Close(ctx)

	var deliveries []models.NotificationDelivery
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %v", err)
	}
	return deliveries, nil
}

// MarkDeliveryRead sets the read flag on a live delivery row. The filter
// excludes deleted rows so a read racing a delete is dropped instead of
// resurrecting the row.
func (r *NotificationRepository) MarkDeliveryRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	res, err := r.deliveries.UpdateOne(ctx,
		bson.M{"notification_id": notificationID, "user_id": userID, "is_deleted": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}})
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery read: %v", err)
	}
	return res.MatchedCount > 0, nil
}

func (r *NotificationRepository) MarkAllDeliveriesRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.deliveries.UpdateMany(ctx,
		bson.M{"user_id": userID, "is_read": false, "is_deleted": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark deliveries read: %v", err)
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepository) SetDeliveryArchived(ctx context.Context, notificationID, userID string, archived bool, at time.Time) (bool, error) {
	update := bson.M{"$set": bson.M{"is_archived": false}, "$unset": bson.M{"archived_at": ""}}
	if archived {
		update = bson.M{"$set": bson.M{"is_archived": true, "archived_at": at}}
	}
	res, err := r.deliveries.UpdateOne(ctx,
		bson.M{"notification_id": notificationID, "user_id": userID, "is_deleted": false},
		update)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery archive flag: %v", err)
	}
	return res.MatchedCount > 0, nil
}

func (r *NotificationRepository) SetDeliveryDeleted(ctx context.Context, notificationID, userID string, deleted bool, at time.Time) (bool, error) {
	update := bson.M{"$set": bson.M{"is_deleted": false}, "$unset": bson.M{"deleted_at": ""}}
	if deleted {
		update = bson.M{"$set": bson.M{"is_deleted": true, "deleted_at": at}}
	}
	res, err := r.deliveries.UpdateOne(ctx,
		bson.M{"notification_id": notificationID, "user_id": userID},
		update)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery delete flag: %v", err)
	}
	return res.MatchedCount > 0, nil
}

func (r *NotificationRepository) UpsertDismissal(ctx context.Context, notificationID, userID string, at time.Time) error {
	opts := options.Update().SetUpsert(true)
	_, err := r.dismissals.UpdateOne(ctx,
		bson.M{"notification_id": notificationID, "user_id": userID},
		bson.M{"$set": bson.M{"dismissed_at": at}},
		opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to upsert dismissal")
		return fmt.Errorf("failed to upsert dismissal: %v", err)
	}
	return nil
}

func (r *NotificationRepository) RemoveDismissal(ctx context.Context, notificationID, userID string) (bool, error) {
	res, err := r.dismissals.DeleteOne(ctx, bson.M{"notification_id": notificationID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to remove dismissal: %v", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *NotificationRepository) ListDismissalsForUser(ctx context.Context, userID string) ([]models.NotificationDismissal, error) {
	cursor, err := r.dismissals.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dismissals: %v", err)
	}
	defer cursor.Close(ctx)

	var dismissals []models.NotificationDismissal
	if err := cursor.All(ctx, &dismissals); err != nil {
		return nil, fmt.Errorf("failed to decode dismissals: %v", err)
	}
	return dismissals, nil
}
