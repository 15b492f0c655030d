package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/nursdev/lms-notifications/internal/services"
	"github.com/nursdev/lms-notifications/pkg/logger"
	"github.com/nursdev/lms-notifications/pkg/middleware"
)

// TemplateHandler handles HTTP requests for notification templates.
type TemplateHandler struct {
	TemplateService     *services.TemplateService
	NotificationService *services.NotificationService
}

func NewTemplateHandler(templateService *services.TemplateService, notificationService *services.NotificationService) *TemplateHandler {
	return &TemplateHandler{
		TemplateService:     templateService,
		NotificationService: notificationService,
	}
}

// POST /admin/templates
func (h *TemplateHandler) CreateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var template models.NotificationTemplate
	if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		logger.Log.Warnf("Failed to decode template: %v", err)
		return
	}
	defer r.Body.Close()

	template.CreatedBy = claims.UserID

	created, err := h.TemplateService.RegisterTemplate(r.Context(), &template)
	if err != nil {
		logger.Log.Errorf("Error creating template: %v", err)
		writeError(w, err)
		return
	}

	logger.Log.Infof("User %s created template %q", claims.UserID, created.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// GET /admin/templates
func (h *TemplateHandler) GetTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	templates, err := h.TemplateService.ListTemplates(r.Context())
	if err != nil {
		logger.Log.Errorf("Error fetching templates: %v", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(templates)
}

// UpdateTemplateRequest is the request body for editing a template. Omitted
// fields are left unchanged.
type UpdateTemplateRequest struct {
	TitlePattern   *string  `json:"title_pattern,omitempty"`
	MessagePattern *string  `json:"message_pattern,omitempty"`
	Type           *string  `json:"type,omitempty"`
	Priority       *string  `json:"priority,omitempty"`
	Variables      []string `json:"variables,omitempty"`
}

// PATCH /admin/templates/{name}
func (h *TemplateHandler) UpdateTemplateHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	in := services.UpdateTemplateInput{
		TitlePattern:   req.TitlePattern,
		MessagePattern: req.MessagePattern,
		Variables:      req.Variables,
	}
	if req.Type != nil {
		t := models.NotificationType(*req.Type)
		in.Type = &t
	}
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		in.Priority = &p
	}

	updated, err := h.TemplateService.UpdateTemplate(r.Context(), name, in)
	if err != nil {
		logger.Log.Errorf("Error updating template %q: %v", name, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// DELETE /admin/templates/{name}
func (h *TemplateHandler) DeleteTemplateHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.TemplateService.DeleteTemplate(r.Context(), name); err != nil {
		logger.Log.Errorf("Error deleting template %q: %v", name, err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Template deleted"})
}

// SendFromTemplateRequest is the request body for sending a notification
// rendered from a stored template.
type SendFromTemplateRequest struct {
	Variables    map[string]string `json:"variables"`
	Target       string            `json:"target"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
}

// POST /admin/templates/{name}/send
func (h *TemplateHandler) SendFromTemplateHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	name := mux.Vars(r)["name"]

	var req SendFromTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	tmpl, title, message, err := h.TemplateService.Render(r.Context(), name, req.Variables)
	if err != nil {
		logger.Log.Errorf("Error rendering template %q: %v", name, err)
		writeError(w, err)
		return
	}

	notification, delivered, err := h.NotificationService.CreateNotification(r.Context(), services.CreateNotificationInput{
		Title:        title,
		Message:      message,
		Type:         tmpl.Type,
		Priority:     tmpl.Priority,
		SenderID:     claims.UserID,
		Target:       req.Target,
		TemplateName: tmpl.Name,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		logger.Log.Errorf("Error sending notification from template %q: %v", name, err)
		writeError(w, err)
		return
	}

	logger.Log.Infof("User %s sent notification %s from template %q (%d deliveries)",
		claims.UserID, notification.ID, name, delivered)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notification": notification,
		"delivered":    delivered,
	})
}
