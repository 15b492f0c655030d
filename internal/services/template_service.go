package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/nursdev/lms-notifications/internal/repository"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// TemplateService manages reusable notification templates and renders them
// into concrete title/message pairs.
type TemplateService struct {
	repo      repository.TemplateStore
	notifRepo repository.NotificationStore
}

func NewTemplateService(repo repository.TemplateStore, notifRepo repository.NotificationStore) *TemplateService {
	return &TemplateService{
		repo:      repo,
		notifRepo: notifRepo,
	}
}

// RegisterTemplate validates and stores a new template. Every placeholder
// used by the patterns must be declared in Variables, and names are unique.
func (s *TemplateService) RegisterTemplate(ctx context.Context, tmpl *models.NotificationTemplate) (*models.NotificationTemplate, error) {
	if strings.TrimSpace(tmpl.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	if strings.TrimSpace(tmpl.TitlePattern) == "" || strings.TrimSpace(tmpl.MessagePattern) == "" {
		return nil, fmt.Errorf("%w: title and message patterns are required", ErrInvalidTemplate)
	}
	if tmpl.Type == "" {
		tmpl.Type = models.TypeInfo
	}
	if tmpl.Priority == "" {
		tmpl.Priority = models.PriorityMedium
	}
	if !tmpl.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTemplate, tmpl.Type)
	}
	if !tmpl.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTemplate, tmpl.Priority)
	}
	if err := checkPlaceholders(tmpl); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetTemplateByName(ctx, tmpl.Name); err == nil {
		return nil, fmt.Errorf("%w: template %q already exists", ErrInvalidTemplate, tmpl.Name)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	created, err := s.repo.CreateTemplate(ctx, tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return created, nil
}

// checkPlaceholders verifies the patterns only reference declared variables.
func checkPlaceholders(tmpl *models.NotificationTemplate) error {
	declared := make(map[string]bool, len(tmpl.Variables))
	for _, v := range tmpl.Variables {
		declared[v] = true
	}
	for _, pattern := range []string{tmpl.TitlePattern, tmpl.MessagePattern} {
		for _, m := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
			if !declared[m[1]] {
				return fmt.Errorf("%w: undeclared placeholder {%s}", ErrInvalidTemplate, m[1])
			}
		}
	}
	return nil
}

// Render resolves a named template and a variable map into a concrete
// title/message pair. Every declared variable must be supplied; extra
// variables are ignored.
func (s *TemplateService) Render(ctx context.Context, name string, variables map[string]string) (*models.NotificationTemplate, string, string, error) {
	tmpl, err := s.repo.GetTemplateByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", "", fmt.Errorf("%w: template %q", ErrNotFound, name)
		}
		return nil, "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for _, v := range tmpl.Variables {
		if _, ok := variables[v]; !ok {
			return nil, "", "", fmt.Errorf("%w: missing variable %q", ErrInvalidTemplate, v)
		}
	}

	title := tmpl.TitlePattern
	message := tmpl.MessagePattern
	for k, v := range variables {
		placeholder := "{" + k + "}"
		title = strings.ReplaceAll(title, placeholder, v)
		message = strings.ReplaceAll(message, placeholder, v)
	}
	return tmpl, title, message, nil
}

func (s *TemplateService) ListTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	templates, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return templates, nil
}

// UpdateTemplateInput carries the editable template fields. Nil means leave
// unchanged.
type UpdateTemplateInput struct {
	TitlePattern   *string
	MessagePattern *string
	Type           *models.NotificationType
	Priority       *models.Priority
	Variables      []string
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, name string, in UpdateTemplateInput) (*models.NotificationTemplate, error) {
	current, err := s.repo.GetTemplateByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: template %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	fields := map[string]interface{}{}
	if in.TitlePattern != nil {
		current.TitlePattern = *in.TitlePattern
		fields["title_pattern"] = *in.TitlePattern
	}
	if in.MessagePattern != nil {
		current.MessagePattern = *in.MessagePattern
		fields["message_pattern"] = *in.MessagePattern
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidTemplate, *in.Type)
		}
		current.Type = *in.Type
		fields["type"] = *in.Type
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidTemplate, *in.Priority)
		}
		current.Priority = *in.Priority
		fields["priority"] = *in.Priority
	}
	if in.Variables != nil {
		current.Variables = in.Variables
		fields["variables"] = in.Variables
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidTemplate)
	}
	if err := checkPlaceholders(current); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTemplate(ctx, name, fields); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: template %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return current, nil
}

// DeleteTemplate removes a template unless a pending scheduled notification
// still references it.
func (s *TemplateService) DeleteTemplate(ctx context.Context, name string) error {
	scheduled, err := s.notifRepo.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, n := range scheduled {
		if n.TemplateName == name {
			return fmt.Errorf("%w: template %q is referenced by a scheduled notification", ErrUnsupportedOperation, name)
		}
	}

	if err := s.repo.DeleteTemplate(ctx, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: template %q", ErrNotFound, name)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
