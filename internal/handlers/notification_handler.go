package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/nursdev/lms-notifications/internal/services"
	"github.com/nursdev/lms-notifications/pkg/logger"
	"github.com/nursdev/lms-notifications/pkg/middleware"
)

// NotificationHandler handles HTTP requests for a user's notification feed
// and the admin notification management endpoints.
type NotificationHandler struct {
	Service *services.NotificationService
}

func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{Service: service}
}

// statusForError maps the service error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTarget),
		errors.Is(err, services.ErrInvalidNotification),
		errors.Is(err, services.ErrInvalidTemplate):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnsupportedOperation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusForError(err))
}

// CreateNotificationRequest is the request body for creating a notification.
type CreateNotificationRequest struct {
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Type         string     `json:"type,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	Target       string     `json:"target"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// POST /notifications
func (h *NotificationHandler) CreateNotificationHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		logger.Log.Warnf("Failed to decode notification request: %v", err)
		return
	}
	defer r.Body.Close()

	notification, delivered, err := h.Service.CreateNotification(r.Context(), services.CreateNotificationInput{
		Title:        req.Title,
		Message:      req.Message,
		Type:         models.NotificationType(req.Type),
		Priority:     models.Priority(req.Priority),
		SenderID:     claims.UserID,
		Target:       req.Target,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		logger.Log.Errorf("Failed to create notification: %v", err)
		writeError(w, err)
		return
	}

	logger.Log.Infof("User %s created notification %s targeting %q (%d deliveries)",
		claims.UserID, notification.ID, notification.Target, delivered)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notification": notification,
		"delivered":    delivered,
	})
}

// GET /notifications
func (h *NotificationHandler) GetUserNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	filter := models.ListFilter{
		IncludeArchived: query.Get("include_archived") == "true",
		IncludeDeleted:  query.Get("include_deleted") == "true",
		Type:            models.NotificationType(query.Get("type")),
		Priority:        models.Priority(query.Get("priority")),
	}

	notifications, err := h.Service.ListForUser(r.Context(), claims.UserID, claims.Role, filter)
	if err != nil && !errors.Is(err, services.ErrStoreUnavailable) {
		logger.Log.Errorf("Failed to fetch notifications: %v", err)
		writeError(w, err)
		return
	}
	if err != nil {
		logger.Log.Warnf("Notification feed degraded for user %s: %v", claims.UserID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// GET /notifications/unread-count
func (h *NotificationHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, err := h.Service.UnreadCount(r.Context(), claims.UserID, claims.Role)
	if err != nil {
		logger.Log.Warnf("Unread count degraded for user %s: %v", claims.UserID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"unread": count})
}

// GET /notifications/stats
func (h *NotificationHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.Service.Stats(r.Context(), claims.UserID, claims.Role)
	if err != nil && !errors.Is(err, services.ErrStoreUnavailable) {
		logger.Log.Errorf("Failed to compute notification stats: %v", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// POST /notifications/{id}/read
func (h *NotificationHandler) MarkAsReadHandler(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "read", h.Service.MarkRead)
}

// POST /notifications/{id}/archive
func (h *NotificationHandler) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "archived", h.Service.Archive)
}

// POST /notifications/{id}/unarchive
func (h *NotificationHandler) UnarchiveHandler(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "unarchived", h.Service.Unarchive)
}

// DELETE /notifications/{id}
func (h *NotificationHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "deleted", h.Service.DeleteForUser)
}

// POST /notifications/{id}/restore
func (h *NotificationHandler) RestoreHandler(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, "restored", h.Service.Restore)
}

func (h *NotificationHandler) applyTransition(w http.ResponseWriter, r *http.Request, verb string, apply func(ctx context.Context, notificationID, userID string) error) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	notifID := mux.Vars(r)["id"]
	if err := apply(r.Context(), notifID, claims.UserID); err != nil {
		logger.Log.Errorf("Failed to mark notification %s as %s: %v", notifID, verb, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Notification " + verb})
}

// BulkActionRequest is the request body for applying one action to many
// notifications.
type BulkActionRequest struct {
	NotificationIDs []string `json:"notification_ids"`
	Action          string   `json:"action"`
}

// POST /notifications/bulk
func (h *NotificationHandler) BulkActionHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req BulkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	applied, skipped, err := h.Service.BulkApply(r.Context(), req.NotificationIDs, claims.UserID, services.BulkAction(req.Action))
	if err != nil {
		logger.Log.Errorf("Bulk action %q failed: %v", req.Action, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"applied": applied, "skipped": skipped})
}

// POST /notifications/read-all
func (h *NotificationHandler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	updated, err := h.Service.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		logger.Log.Errorf("Failed to mark all notifications read for user %s: %v", claims.UserID, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"updated": updated})
}

// GET /admin/notifications
func (h *NotificationHandler) AdminListHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.AdminFilter{
		Type:     models.NotificationType(query.Get("type")),
		Target:   query.Get("target"),
		Status:   models.Status(query.Get("status")),
		SenderID: query.Get("sender_id"),
	}

	notifications, err := h.Service.AdminList(r.Context(), filter)
	if err != nil {
		logger.Log.Errorf("Failed to list notifications for admin: %v", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// GET /admin/notifications/{id}/recipients
func (h *NotificationHandler) RecipientsHandler(w http.ResponseWriter, r *http.Request) {
	notifID := mux.Vars(r)["id"]

	recipients, err := h.Service.Recipients(r.Context(), notifID)
	if err != nil {
		logger.Log.Errorf("Failed to list recipients of notification %s: %v", notifID, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recipients)
}

// AdminUpdateRequest is the request body for an administrative edit.
type AdminUpdateRequest struct {
	Title    *string `json:"title,omitempty"`
	Message  *string `json:"message,omitempty"`
	Type     *string `json:"type,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Status   *string `json:"status,omitempty"`
}

// PATCH /admin/notifications/{id}
func (h *NotificationHandler) AdminUpdateHandler(w http.ResponseWriter, r *http.Request) {
	notifID := mux.Vars(r)["id"]

	var req AdminUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	in := services.AdminUpdateInput{
		Title:   req.Title,
		Message: req.Message,
	}
	if req.Type != nil {
		t := models.NotificationType(*req.Type)
		in.Type = &t
	}
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		in.Priority = &p
	}
	if req.Status != nil {
		s := models.Status(*req.Status)
		in.Status = &s
	}

	if err := h.Service.AdminUpdate(r.Context(), notifID, in); err != nil {
		logger.Log.Errorf("Failed to update notification %s: %v", notifID, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Notification updated"})
}

// DELETE /admin/notifications/{id}
func (h *NotificationHandler) AdminDeleteHandler(w http.ResponseWriter, r *http.Request) {
	notifID := mux.Vars(r)["id"]

	if err := h.Service.AdminDelete(r.Context(), notifID); err != nil {
		logger.Log.Errorf("Failed to delete notification %s: %v", notifID, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Notification deleted"})
}

// GET /admin/notifications/scheduled
func (h *NotificationHandler) ScheduledListHandler(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.Service.ListScheduled(r.Context())
	if err != nil {
		logger.Log.Errorf("Failed to list scheduled notifications: %v", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// DELETE /admin/notifications/scheduled/{id}
func (h *NotificationHandler) CancelScheduledHandler(w http.ResponseWriter, r *http.Request) {
	notifID := mux.Vars(r)["id"]

	if err := h.Service.CancelScheduled(r.Context(), notifID); err != nil {
		logger.Log.Errorf("Failed to cancel scheduled notification %s: %v", notifID, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Scheduled notification cancelled"})
}
