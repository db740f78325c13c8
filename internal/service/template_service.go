// internal/service/template_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/selection"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// Recipient is whoever a message is personalized for: a contact, or the
// target session of an internal conversation.
type Recipient struct {
	Name  string
	Phone string
	Email string
}

const (
	DefaultContactName = "amigo"
	DefaultSessionName = "Colega"
)

// Greeting returns the greeting for the hour of now.
func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Bom dia"
	case h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// Personalize fills {nome}, {telefone}, {email} and {saudacao}.
func Personalize(content string, r Recipient, now time.Time, defaultName string) string {
	name := r.Name
	if name == "" {
		name = defaultName
	}
	return RenderTemplate(content, map[string]string{
		"nome":     name,
		"telefone": r.Phone,
		"email":    r.Email,
		"saudacao": Greeting(now),
	})
}

// TemplateInput carries template fields for create, update and import.
// Nil fields keep their current (or default) value.
type TemplateInput struct {
	Name        *string `json:"name"`
	Content     *string `json:"content"`
	MessageType *string `json:"message_type"`
	Weight      *int    `json:"weight"`
	MediaPath   *string `json:"media_path"`
	IsActive    *bool   `json:"is_active"`
}

func (in TemplateInput) apply(t *model.MessageTemplate) {
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.Content != nil {
		t.Content = strings.TrimSpace(*in.Content)
	}
	if in.MessageType != nil && *in.MessageType != "" {
		t.MessageType = *in.MessageType
	}
	if in.Weight != nil {
		t.Weight = selection.ClampWeight(*in.Weight)
	}
	if in.MediaPath != nil {
		path := *in.MediaPath
		t.MediaPath = &path
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
}

func validateTemplate(t *model.MessageTemplate) error {
	if t.Name == "" {
		return appErrors.NewValidation("name", "is required")
	}
	if t.Content == "" {
		return appErrors.NewValidation("content", "is required")
	}
	if !model.ValidMessageType(t.MessageType) {
		return appErrors.NewValidation("message_type", "unsupported message type %q", t.MessageType)
	}
	return nil
}

func newTemplate(campaignID string, in TemplateInput) *model.MessageTemplate {
	t := &model.MessageTemplate{
		CampaignID:  campaignID,
		MessageType: model.MessageTypeText,
		Weight:      selection.MinWeight,
		IsActive:    true,
	}
	in.apply(t)
	return t
}

func (s *WarmupService) CreateTemplate(ctx context.Context, campaignID string, in TemplateInput) (*model.MessageTemplate, error) {
	if _, err := s.Repos.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	t := newTemplate(campaignID, in)
	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	if err := s.Repos.Templates.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (s *WarmupService) UpdateTemplate(ctx context.Context, campaignID, templateID string, in TemplateInput) (*model.MessageTemplate, error) {
	t, err := s.Repos.Templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if t.CampaignID != campaignID {
		return nil, appErrors.NewTemplateNotFound(templateID)
	}
	in.apply(t)
	if err := validateTemplate(t); err != nil {
		return nil, err
	}
	if err := s.Repos.Templates.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

func (s *WarmupService) DeleteTemplate(ctx context.Context, campaignID, templateID string) error {
	return s.Repos.Templates.Delete(ctx, campaignID, templateID)
}

func (s *WarmupService) ListTemplates(ctx context.Context, campaignID string) ([]*model.MessageTemplate, error) {
	if _, err := s.Repos.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.Repos.Templates.ListByCampaign(ctx, campaignID, false)
}

type ImportSummary struct {
	TotalImported        int  `json:"total_imported"`
	SuccessfulImports    int  `json:"successful_imports"`
	FailedImports        int  `json:"failed_imports"`
	ReplaceExisting      bool `json:"replace_existing"`
	TotalActiveTemplates int  `json:"total_active_templates"`
}

type ImportResult struct {
	Summary          ImportSummary            `json:"summary"`
	CreatedTemplates []*model.MessageTemplate `json:"created_templates"`
}

// ImportTemplates validates every entry first and then creates them in one
// transaction. With replaceExisting all current templates are deactivated.
// Any failed insert rolls the whole import back.
func (s *WarmupService) ImportTemplates(ctx context.Context, campaignID string, inputs []TemplateInput, replaceExisting bool) (*ImportResult, error) {
	if len(inputs) == 0 {
		return nil, appErrors.NewValidation("templates", "at least one template is required")
	}
	if _, err := s.Repos.Campaigns.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}

	templates := make([]*model.MessageTemplate, len(inputs))
	for i, in := range inputs {
		t := newTemplate(campaignID, in)
		if err := validateTemplate(t); err != nil {
			return nil, appErrors.NewValidation(fmt.Sprintf("templates[%d]", i), "%v", err)
		}
		templates[i] = t
	}

	res := &ImportResult{CreatedTemplates: []*model.MessageTemplate{}}
	err := s.Repos.Tx.Transact(ctx, func(ctx context.Context) error {
		if replaceExisting {
			if err := s.Repos.Templates.DeactivateAll(ctx, campaignID); err != nil {
				return fmt.Errorf("deactivate templates: %w", err)
			}
		}
		for i, t := range templates {
			if err := s.Repos.Templates.Create(ctx, t); err != nil {
				return fmt.Errorf("create template %d (%s): %w", i+1, t.Name, err)
			}
			res.CreatedTemplates = append(res.CreatedTemplates, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	active, err := s.Repos.Templates.CountActive(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count active templates: %w", err)
	}
	res.Summary = ImportSummary{
		TotalImported:        len(inputs),
		SuccessfulImports:    len(res.CreatedTemplates),
		FailedImports:        len(inputs) - len(res.CreatedTemplates),
		ReplaceExisting:      replaceExisting,
		TotalActiveTemplates: active,
	}
	s.Logger.Info("templates imported",
		zap.String("campaign_id", campaignID),
		zap.Int("imported", len(res.CreatedTemplates)),
		zap.Bool("replace_existing", replaceExisting))
	return res, nil
}
