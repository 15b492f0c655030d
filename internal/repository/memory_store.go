package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nursdev/lms-notifications/internal/models"
)

// MemoryStore is an in-memory implementation of NotificationStore,
// TemplateStore and UserStore. Suitable for tests and local development; a
// single mutex gives it the same atomicity guarantees the Mongo transactions
// provide.
type MemoryStore struct {
	mu         sync.RWMutex
	notifs     map[string]*models.Notification
	deliveries map[string]*models.NotificationDelivery // key: notificationID + "/" + userID
	dismissals map[string]*models.NotificationDismissal
	templates  map[string]*models.NotificationTemplate // key: name
	users      map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifs:     make(map[string]*models.Notification),
		deliveries: make(map[string]*models.NotificationDelivery),
		dismissals: make(map[string]*models.NotificationDismissal),
		templates:  make(map[string]*models.NotificationTemplate),
		users:      make(map[string]*models.User),
	}
}

func pairKey(notificationID, userID string) string {
	return notificationID + "/" + userID
}

// AddUser seeds the user projection.
func (s *MemoryStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	s.users[u.ID] = &u
}

func (s *MemoryStore) CreateWithDeliveries(ctx context.Context, n *models.Notification, deliveries []*models.NotificationDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	s.notifs[n.ID] = &cp
	for _, d := range deliveries {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = n.CreatedAt
		}
		dc := *d
		s.deliveries[pairKey(d.NotificationID, d.UserID)] = &dc
	}
	return nil
}

func (s *MemoryStore) ActivateWithDeliveries(ctx context.Context, id string, deliveries []*models.NotificationDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifs[id]
	if !ok || n.Status != models.StatusScheduled {
		return ErrNotFound
	}
	n.Status = models.StatusActive
	for _, d := range deliveries {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now()
		}
		dc := *d
		s.deliveries[pairKey(d.NotificationID, d.UserID)] = &dc
	}
	return nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) GetNotificationsByIDs(ctx context.Context, ids []string) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, id := range ids {
		if n, ok := s.notifs[id]; ok {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, filter models.AdminFilter) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, n := range s.notifs {
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.Target != "" && n.Target != filter.Target {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if filter.SenderID != "" && n.SenderID != filter.SenderID {
			continue
		}
		out = append(out, *n)
	}
	sortNotificationsDesc(out)
	return out, nil
}

func (s *MemoryStore) ListGlobalActive(ctx context.Context) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, n := range s.notifs {
		if n.IsGlobal && n.Status == models.StatusActive {
			out = append(out, *n)
		}
	}
	sortNotificationsDesc(out)
	return out, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status models.Status) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, n := range s.notifs {
		if n.Status == status {
			out = append(out, *n)
		}
	}
	sortNotificationsDesc(out)
	return out, nil
}

func (s *MemoryStore) ListDueScheduled(ctx context.Context, now time.Time) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Notification
	for _, n := range s.notifs {
		if n.Status == models.StatusScheduled && n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateNotification(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			n.Title = v.(string)
		case "message":
			n.Message = v.(string)
		case "type":
			n.Type = v.(models.NotificationType)
		case "priority":
			n.Priority = v.(models.Priority)
		case "status":
			n.Status = v.(models.Status)
		}
	}
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status models.Status) error {
	return s.UpdateNotification(ctx, id, map[string]interface{}{"status": status})
}

func (s *MemoryStore) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifs[id]; !ok {
		return ErrNotFound
	}
	delete(s.notifs, id)
	for key, d := range s.deliveries {
		if d.NotificationID == id {
			delete(s.deliveries, key)
		}
	}
	for key, d := range s.dismissals {
		if d.NotificationID == id {
			delete(s.dismissals, key)
		}
	}
	return nil
}

func (s *MemoryStore) GetDelivery(ctx context.Context, notificationID, userID string) (*models.NotificationDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[pairKey(notificationID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDeliveriesForUser(ctx context.Context, userID string) ([]models.NotificationDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NotificationDelivery
	for _, d := range s.deliveries {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListDeliveriesForNotification(ctx context.Context, notificationID string) ([]models.NotificationDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NotificationDelivery
	for _, d := range s.deliveries {
		if d.NotificationID == notificationID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkDeliveryRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[pairKey(notificationID, userID)]
	if !ok || d.IsDeleted {
		return false, nil
	}
	d.IsRead = true
	t := at
	d.ReadAt = &t
	return true, nil
}

func (s *MemoryStore) MarkAllDeliveriesRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, d := range s.deliveries {
		if d.UserID == userID && !d.IsDeleted && !d.IsRead {
			d.IsRead = true
			t := at
			d.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SetDeliveryArchived(ctx context.Context, notificationID, userID string, archived bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[pairKey(notificationID, userID)]
	if !ok || d.IsDeleted {
		return false, nil
	}
	d.IsArchived = archived
	if archived {
		t := at
		d.ArchivedAt = &t
	} else {
		d.ArchivedAt = nil
	}
	return true, nil
}

func (s *MemoryStore) SetDeliveryDeleted(ctx context.Context, notificationID, userID string, deleted bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[pairKey(notificationID, userID)]
	if !ok {
		return false, nil
	}
	d.IsDeleted = deleted
	if deleted {
		t := at
		d.DeletedAt = &t
	} else {
		d.DeletedAt = nil
	}
	return true, nil
}

func (s *MemoryStore) UpsertDismissal(ctx context.Context, notificationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(notificationID, userID)
	if d, ok := s.dismissals[key]; ok {
		d.DismissedAt = at
		return nil
	}
	s.dismissals[key] = &models.NotificationDismissal{
		ID:             uuid.New().String(),
		NotificationID: notificationID,
		UserID:         userID,
		DismissedAt:    at,
	}
	return nil
}

func (s *MemoryStore) RemoveDismissal(ctx context.Context, notificationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(notificationID, userID)
	if _, ok := s.dismissals[key]; !ok {
		return false, nil
	}
	delete(s.dismissals, key)
	return true, nil
}

func (s *MemoryStore) ListDismissalsForUser(ctx context.Context, userID string) ([]models.NotificationDismissal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NotificationDismissal
	for _, d := range s.dismissals {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) (*models.NotificationTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	tmpl.CreatedAt = time.Now()
	tmpl.UpdatedAt = tmpl.CreatedAt
	cp := *tmpl
	s.templates[tmpl.Name] = &cp
	return tmpl, nil
}

func (s *MemoryStore) GetTemplateByName(ctx context.Context, name string) (*models.NotificationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NotificationTemplate
	for _, t := range s.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateTemplate(ctx context.Context, name string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[name]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "title_pattern":
			t.TitlePattern = v.(string)
		case "message_pattern":
			t.MessagePattern = v.(string)
		case "type":
			t.Type = v.(models.NotificationType)
		case "priority":
			t.Priority = v.(models.Priority)
		case "variables":
			t.Variables = v.([]string)
		}
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteTemplate(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[name]; !ok {
		return ErrNotFound
	}
	delete(s.templates, name)
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetActiveUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.User
	for _, u := range s.users {
		if u.Active && strings.EqualFold(u.Role, role) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetActiveUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.User
	for _, u := range s.users {
		if u.Active {
			out = append(out, *u)
		}
	}
	return out, nil
}

func sortNotificationsDesc(ns []models.Notification) {
	sort.Slice(ns, func(i, j int) bool { return ns[i].CreatedAt.After(ns[j].CreatedAt) })
}
