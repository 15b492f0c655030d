package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/nursdev/lms-notifications/internal/repository"
	"github.com/sirupsen/logrus"
)

// Broadcaster receives domain events for realtime delivery. Push is
// best-effort: delivery rows in the record store remain the source of truth.
type Broadcaster interface {
	NotificationCreated(n *models.Notification, recipients []string)
}

// NotificationService owns notification creation, fan-out and per-recipient
// state transitions.
type NotificationService struct {
	repo        repository.NotificationStore
	users       repository.UserStore
	resolver    *TargetResolver
	broadcaster Broadcaster
}

func NewNotificationService(repo repository.NotificationStore, users repository.UserStore, resolver *TargetResolver, broadcaster Broadcaster) *NotificationService {
	return &NotificationService{
		repo:        repo,
		users:       users,
		resolver:    resolver,
		broadcaster: broadcaster,
	}
}

// CreateNotificationInput carries everything needed to create and fan out a
// notification. Type and Priority default to info/medium when empty.
type CreateNotificationInput struct {
	Title        string
	Message      string
	Type         models.NotificationType
	Priority     models.Priority
	SenderID     string
	Target       string
	TemplateName string
	ScheduledFor *time.Time
}

// CreateNotification validates the request, persists the notification and,
// for non-global targets, its delivery rows in one transaction. It returns
// the stored notification and the number of deliveries created (0 for global
// and scheduled notifications). The realtime event is emitted only after the
// write committed.
func (s *NotificationService) CreateNotification(ctx context.Context, in CreateNotificationInput) (*models.Notification, int, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, 0, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, 0, fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}
	if in.Type == "" {
		in.Type = models.TypeInfo
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, in.Type)
	}
	if !in.Priority.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, in.Priority)
	}

	target, err := ParseTarget(in.Target)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	n := &models.Notification{
		ID:           uuid.New().String(),
		Title:        strings.TrimSpace(in.Title),
		Message:      strings.TrimSpace(in.Message),
		Type:         in.Type,
		Priority:     in.Priority,
		SenderID:     in.SenderID,
		Target:       in.Target,
		TemplateName: in.TemplateName,
		IsGlobal:     target.Global(),
		Status:       models.StatusActive,
		CreatedAt:    now,
		ScheduledFor: in.ScheduledFor,
	}

	// Scheduled notifications are only stored; resolution and fan-out happen
	// at activation time so the recipient snapshot is taken when the
	// notification actually goes out.
	if in.ScheduledFor != nil && in.ScheduledFor.After(now) {
		n.Status = models.StatusScheduled
		if err := s.repo.CreateWithDeliveries(ctx, n, nil); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return n, 0, nil
	}

	deliveries, dropped, err := s.buildDeliveries(ctx, n, target)
	if err != nil {
		return nil, 0, err
	}
	if dropped > 0 {
		logrus.WithFields(logrus.Fields{
			"notificationID": n.ID,
			"dropped":        dropped,
		}).Warn("Target list contained unknown or inactive users")
	}

	if err := s.repo.CreateWithDeliveries(ctx, n, deliveries); err != nil {
		logrus.WithError(err).WithField("notificationID", n.ID).Error("Notification fan-out write failed")
		return nil, 0, fmt.Errorf("%w: %v", ErrFanoutFailed, err)
	}

	s.emitCreated(n, deliveries)
	return n, len(deliveries), nil
}

// buildDeliveries resolves the recipient snapshot for a non-global target.
// Global targets produce no rows: their per-user state is the dismissal
// overlay.
func (s *NotificationService) buildDeliveries(ctx context.Context, n *models.Notification, target Target) ([]*models.NotificationDelivery, int, error) {
	if target.Global() {
		return nil, 0, nil
	}
	recipients, dropped, err := s.resolver.Resolve(ctx, target)
	if err != nil {
		return nil, dropped, err
	}
	deliveries := make([]*models.NotificationDelivery, 0, len(recipients))
	for _, userID := range recipients {
		deliveries = append(deliveries, &models.NotificationDelivery{
			ID:             uuid.New().String(),
			NotificationID: n.ID,
			UserID:         userID,
		})
	}
	return deliveries, dropped, nil
}

func (s *NotificationService) emitCreated(n *models.Notification, deliveries []*models.NotificationDelivery) {
	if s.broadcaster == nil {
		return
	}
	recipients := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		recipients = append(recipients, d.UserID)
	}
	s.broadcaster.NotificationCreated(n, recipients)
}

// ActivateDue fans out every scheduled notification whose time has come.
// Called by the scheduler collaborator; returns the number activated.
func (s *NotificationService) ActivateDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDueScheduled(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	activated := 0
	for i := range due {
		n := due[i]
		target, err := ParseTarget(n.Target)
		if err != nil {
			logrus.WithField("notificationID", n.ID).Warn("Scheduled notification has unparseable target, cancelling")
			_ = s.repo.SetStatus(ctx, n.ID, models.StatusCancelled)
			continue
		}
		deliveries, dropped, err := s.buildDeliveries(ctx, &n, target)
		if err != nil {
			logrus.WithError(err).WithField("notificationID", n.ID).Error("Failed to resolve scheduled notification recipients")
			continue
		}
		if dropped > 0 {
			logrus.WithFields(logrus.Fields{"notificationID": n.ID, "dropped": dropped}).
				Warn("Scheduled target list contained unknown or inactive users")
		}
		if err := s.repo.ActivateWithDeliveries(ctx, n.ID, deliveries); err != nil {
			if !errors.Is(err, repository.ErrNotFound) { // already activated or cancelled elsewhere
				logrus.WithError(err).WithField("notificationID", n.ID).Error("Failed to activate scheduled notification")
			}
			continue
		}
		n.Status = models.StatusActive
		s.emitCreated(&n, deliveries)
		activated++
	}
	return activated, nil
}

// CancelScheduled cancels a notification that has not gone out yet.
func (s *NotificationService) CancelScheduled(ctx context.Context, id string) error {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n.Status != models.StatusScheduled {
		return fmt.Errorf("%w: notification is not scheduled", ErrUnsupportedOperation)
	}
	if err := s.repo.SetStatus(ctx, id, models.StatusCancelled); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListScheduled returns notifications still waiting for activation.
func (s *NotificationService) ListScheduled(ctx context.Context) ([]models.Notification, error) {
	notifs, err := s.repo.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return notifs, nil
}

// ListForUser merges the user's per-recipient deliveries with the global
// notifications visible to their role, applies the filters uniformly and
// returns the feed newest first. On store failure it degrades to an empty
// feed with ErrStoreUnavailable surfaced as a warning.
func (s *NotificationService) ListForUser(ctx context.Context, userID, role string, filter models.ListFilter) ([]models.UserNotification, error) {
	personal, err := s.personalFeed(ctx, userID, filter)
	if err != nil {
		logrus.WithError(err).WithField("userID", userID).Warn("Failed to load personal notifications, degrading to empty feed")
		return []models.UserNotification{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	global, err := s.globalFeed(ctx, userID, role, filter)
	if err != nil {
		logrus.WithError(err).WithField("userID", userID).Warn("Failed to load global notifications, degrading to empty feed")
		return []models.UserNotification{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	feed := append(personal, global...)
	sort.Slice(feed, func(i, j int) bool { return feed[i].CreatedAt.After(feed[j].CreatedAt) })
	return feed, nil
}

func (s *NotificationService) personalFeed(ctx context.Context, userID string, filter models.ListFilter) ([]models.UserNotification, error) {
	deliveries, err := s.repo.ListDeliveriesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	visible := make([]models.NotificationDelivery, 0, len(deliveries))
	ids := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		if d.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if d.IsArchived && !filter.IncludeArchived {
			continue
		}
		visible = append(visible, d)
		ids = append(ids, d.NotificationID)
	}

	notifs, err := s.repo.GetNotificationsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Notification, len(notifs))
	for _, n := range notifs {
		byID[n.ID] = n
	}

	var feed []models.UserNotification
	for _, d := range visible {
		n, ok := byID[d.NotificationID]
		if !ok || n.Status == models.StatusCancelled {
			continue
		}
		if !matchesFilter(n, filter) {
			continue
		}
		feed = append(feed, models.UserNotification{
			Notification: n,
			IsRead:       d.IsRead,
			ReadAt:       d.ReadAt,
			IsArchived:   d.IsArchived,
			ArchivedAt:   d.ArchivedAt,
			IsDeleted:    d.IsDeleted,
			DeletedAt:    d.DeletedAt,
		})
	}
	return feed, nil
}

func (s *NotificationService) globalFeed(ctx context.Context, userID, role string, filter models.ListFilter) ([]models.UserNotification, error) {
	globals, err := s.repo.ListGlobalActive(ctx)
	if err != nil {
		return nil, err
	}
	dismissals, err := s.repo.ListDismissalsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	dismissed := make(map[string]models.NotificationDismissal, len(dismissals))
	for _, d := range dismissals {
		dismissed[d.NotificationID] = d
	}

	var feed []models.UserNotification
	for _, n := range globals {
		if !globalTargetsRole(n.Target, role) {
			continue
		}
		if !matchesFilter(n, filter) {
			continue
		}
		un := models.UserNotification{Notification: n}
		if dis, ok := dismissed[n.ID]; ok {
			if !filter.IncludeDeleted {
				continue
			}
			at := dis.DismissedAt
			un.IsDeleted = true
			un.DeletedAt = &at
		}
		feed = append(feed, un)
	}
	return feed, nil
}

// globalTargetsRole reports whether a global notification's target covers the
// given role. "all" and "role:*" cover everyone.
func globalTargetsRole(target, role string) bool {
	if target == "all" {
		return true
	}
	if r, ok := strings.CutPrefix(target, "role:"); ok {
		return r == "*" || strings.EqualFold(r, role)
	}
	return false
}

func matchesFilter(n models.Notification, filter models.ListFilter) bool {
	if filter.Type != "" && n.Type != filter.Type {
		return false
	}
	if filter.Priority != "" && n.Priority != filter.Priority {
		return false
	}
	return true
}

// MarkRead marks the user's delivery of a notification as read. Global
// notifications carry no read state, so the call is a no-op success; a read
// racing a delete on the same pair is silently dropped (delete wins).
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	n, err := s.getNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.IsGlobal {
		return nil
	}

	matched, err := s.repo.MarkDeliveryRead(ctx, notificationID, userID, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if matched {
		return nil
	}
	return s.explainUnmatched(ctx, notificationID, userID)
}

// Archive archives the user's delivery. Global notifications only support
// dismissal, so archiving one fails with ErrUnsupportedOperation.
func (s *NotificationService) Archive(ctx context.Context, notificationID, userID string) error {
	return s.setArchived(ctx, notificationID, userID, true)
}

// Unarchive clears the archive flag, returning the delivery to its previous
// read/unread state.
func (s *NotificationService) Unarchive(ctx context.Context, notificationID, userID string) error {
	return s.setArchived(ctx, notificationID, userID, false)
}

func (s *NotificationService) setArchived(ctx context.Context, notificationID, userID string, archived bool) error {
	n, err := s.getNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.IsGlobal {
		return fmt.Errorf("%w: global notifications cannot be archived", ErrUnsupportedOperation)
	}

	matched, err := s.repo.SetDeliveryArchived(ctx, notificationID, userID, archived, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if matched {
		return nil
	}
	return s.explainUnmatched(ctx, notificationID, userID)
}

// explainUnmatched decides what a guarded update that hit no row means: no
// delivery row at all is NotFound, a deleted row means a concurrent delete
// won and the write is dropped.
func (s *NotificationService) explainUnmatched(ctx context.Context, notificationID, userID string) error {
	d, err := s.repo.GetDelivery(ctx, notificationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if d.IsDeleted {
		logrus.WithFields(logrus.Fields{
			"notificationID": notificationID,
			"userID":         userID,
		}).Debug("State write dropped, delivery already deleted")
		return nil
	}
	return ErrNotFound
}

// DeleteForUser soft-deletes the user's delivery, or dismisses a global
// notification. Idempotent.
func (s *NotificationService) DeleteForUser(ctx context.Context, notificationID, userID string) error {
	n, err := s.getNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.IsGlobal {
		if err := s.repo.UpsertDismissal(ctx, notificationID, userID, time.Now()); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	matched, err := s.repo.SetDeliveryDeleted(ctx, notificationID, userID, true, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

// Restore clears the delete flag, returning the delivery to its exact
// pre-delete flags. For a global notification it removes the dismissal.
func (s *NotificationService) Restore(ctx context.Context, notificationID, userID string) error {
	n, err := s.getNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.IsGlobal {
		if _, err := s.repo.RemoveDismissal(ctx, notificationID, userID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	matched, err := s.repo.SetDeliveryDeleted(ctx, notificationID, userID, false, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every live delivery of the user as read and returns the
// number of rows touched.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.MarkAllDeliveriesRead(ctx, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// Stats computes the user's notification counters from delivery rows plus
// visible global notifications. A non-dismissed global counts as one unread,
// active notification; dismissed globals are not counted at all. Degrades to
// zeroes on store failure.
func (s *NotificationService) Stats(ctx context.Context, userID, role string) (models.NotificationStats, error) {
	var stats models.NotificationStats

	deliveries, err := s.repo.ListDeliveriesForUser(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("userID", userID).Warn("Failed to load deliveries for stats")
		return stats, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, d := range deliveries {
		stats.Total++
		if !d.IsRead {
			stats.Unread++
		}
		if d.IsArchived {
			stats.Archived++
		}
		if d.IsDeleted {
			stats.Deleted++
		}
	}

	globals, err := s.globalFeed(ctx, userID, role, models.ListFilter{})
	if err != nil {
		logrus.WithError(err).WithField("userID", userID).Warn("Failed to load global notifications for stats")
		return models.NotificationStats{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	stats.Total += len(globals)
	stats.Unread += len(globals)

	stats.Read = stats.Total - stats.Unread
	stats.Active = stats.Total - stats.Deleted
	return stats, nil
}

// UnreadCount is the cheap counter behind the navbar badge.
func (s *NotificationService) UnreadCount(ctx context.Context, userID, role string) (int, error) {
	stats, err := s.Stats(ctx, userID, role)
	if err != nil {
		return 0, err
	}
	return stats.Unread, nil
}

// AdminList returns every notification matching the filter with recipient
// state rollups for the management dashboard.
func (s *NotificationService) AdminList(ctx context.Context, filter models.AdminFilter) ([]models.AdminNotification, error) {
	notifs, err := s.repo.ListNotifications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]models.AdminNotification, 0, len(notifs))
	for _, n := range notifs {
		deliveries, err := s.repo.ListDeliveriesForNotification(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		var rs models.NotificationStats
		for _, d := range deliveries {
			rs.Total++
			if d.IsRead {
				rs.Read++
			}
			if d.IsArchived {
				rs.Archived++
			}
			if d.IsDeleted {
				rs.Deleted++
			}
		}
		rs.Unread = rs.Total - rs.Read
		rs.Active = rs.Total - rs.Deleted
		out = append(out, models.AdminNotification{Notification: n, RecipientStats: rs})
	}
	return out, nil
}

// Recipients returns the per-user state of one notification, decorated with
// user details for the admin view.
func (s *NotificationService) Recipients(ctx context.Context, notificationID string) ([]models.Recipient, error) {
	if _, err := s.getNotification(ctx, notificationID); err != nil {
		return nil, err
	}
	deliveries, err := s.repo.ListDeliveriesForNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ids := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		ids = append(ids, d.UserID)
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]models.Recipient, 0, len(deliveries))
	for _, d := range deliveries {
		r := models.Recipient{
			UserID:     d.UserID,
			IsRead:     d.IsRead,
			ReadAt:     d.ReadAt,
			IsArchived: d.IsArchived,
			ArchivedAt: d.ArchivedAt,
			IsDeleted:  d.IsDeleted,
			DeletedAt:  d.DeletedAt,
		}
		if u, ok := byID[d.UserID]; ok {
			r.Username = u.Username
			r.Email = u.Email
			r.Role = u.Role
		}
		out = append(out, r)
	}
	return out, nil
}

// AdminUpdateInput is the set of fields an administrator may edit after
// creation. Nil fields are left untouched.
type AdminUpdateInput struct {
	Title    *string
	Message  *string
	Type     *models.NotificationType
	Priority *models.Priority
	Status   *models.Status
}

// AdminUpdate applies an administrative edit to a notification. This is the
// only mutation of notification content after creation.
func (s *NotificationService) AdminUpdate(ctx context.Context, id string, in AdminUpdateInput) error {
	fields := map[string]interface{}{}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return fmt.Errorf("%w: title cannot be empty", ErrInvalidNotification)
		}
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Message != nil {
		if strings.TrimSpace(*in.Message) == "" {
			return fmt.Errorf("%w: message cannot be empty", ErrInvalidNotification)
		}
		fields["message"] = strings.TrimSpace(*in.Message)
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, *in.Type)
		}
		fields["type"] = *in.Type
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, *in.Priority)
		}
		fields["priority"] = *in.Priority
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidNotification, *in.Status)
		}
		fields["status"] = *in.Status
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalidNotification)
	}

	if err := s.repo.UpdateNotification(ctx, id, fields); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// AdminDelete removes a notification entirely, cascading its deliveries and
// dismissals.
func (s *NotificationService) AdminDelete(ctx context.Context, id string) error {
	if err := s.repo.DeleteNotification(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *NotificationService) getNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}
