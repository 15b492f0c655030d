package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nursdev/lms-notifications/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TemplateRepository struct {
	collection *mongo.Collection
}

func NewTemplateRepository(db *mongo.Database) *TemplateRepository {
	return &TemplateRepository{
		collection: db.Collection("notification_templates"),
	}
}

func (r *TemplateRepository) CreateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) (*models.NotificationTemplate, error) {
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = tmpl.CreatedAt

	if _, err := r.collection.InsertOne(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to insert template: %v", err)
	}
	return tmpl, nil
}

func (r *TemplateRepository) GetTemplateByName(ctx context.Context, name string) (*models.NotificationTemplate, error) {
	var tmpl models.NotificationTemplate
	err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&tmpl)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template by name: %v", err)
	}
	return &tmpl, nil
}

func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %v", err)
	}
	defer cursor.Close(ctx)

	var templates []models.NotificationTemplate
	if err := cursor.All(ctx, &templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %v", err)
	}
	return templates, nil
}

func (r *TemplateRepository) UpdateTemplate(ctx context.Context, name string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res, err := r.collection.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("failed to update template: %v", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TemplateRepository) DeleteTemplate(ctx context.Context, name string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("failed to delete template: %v", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
