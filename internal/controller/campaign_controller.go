// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/service"
)

// OrganizationHeader carries the tenant of every request.
const OrganizationHeader = "X-Organization-ID"

type CampaignController struct {
	Service *service.WarmupService
	Logger  *zap.Logger
}

func NewCampaignController(svc *service.WarmupService, logger *zap.Logger) *CampaignController {
	return &CampaignController{Service: svc, Logger: logger}
}

// Routes mounts the operator API on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.CreateCampaign)
		r.Get("/", c.ListCampaigns)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", c.GetCampaign)
			r.Put("/", c.UpdateCampaign)
			r.Delete("/", c.DeleteCampaign)

			r.Post("/pause", c.PauseCampaign)
			r.Post("/resume", c.ResumeCampaign)
			r.Post("/force-execution", c.ForceExecution)
			r.Post("/health/recalculate", c.RecalculateHealth)
			r.Post("/test-auto-pause", c.TestAutoPause)

			r.Post("/sessions", c.AttachSessions)
			r.Delete("/sessions/{sessionID}", c.DetachSession)
			r.Post("/contacts", c.AttachContacts)
			r.Delete("/contacts/{contactID}", c.DetachContact)

			r.Get("/templates", c.ListTemplates)
			r.Post("/templates", c.CreateTemplate)
			r.Post("/templates/import", c.ImportTemplates)
			r.Put("/templates/{templateID}", c.UpdateTemplate)
			r.Delete("/templates/{templateID}", c.DeleteTemplate)
		})
	})
	r.Put("/campaign-sessions/{id}/auto-read", c.UpdateAutoRead)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (c *CampaignController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := appErrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		c.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return false
	}
	return true
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if !decode(w, r, &body) {
		return
	}
	campaign, err := c.Service.CreateCampaign(r.Context(), r.Header.Get(OrganizationHeader), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	campaigns, pagination, err := c.Service.ListCampaigns(r.Context(), r.Header.Get(OrganizationHeader), page, pageSize)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination, // page, page_size, total_count, total_pages
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.Service.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignInput
	if !decode(w, r, &body) {
		return
	}
	campaign, err := c.Service.UpdateCampaign(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.DeleteCampaign(r.Context(), chi.URLParam(r, "id")); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.Service.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id": campaign.ID,
		"is_active":   campaign.IsActive,
		"message":     "Campaign paused",
	})
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	executions, err := c.Service.Resume(r.Context(), id)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id":     id,
		"is_active":       true,
		"test_executions": executions,
	})
}

func (c *CampaignController) ForceExecution(w http.ResponseWriter, r *http.Request) {
	var body service.ForceInput
	if !decode(w, r, &body) {
		return
	}
	execution, err := c.Service.ForceExecution(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, execution)
}

func (c *CampaignController) RecalculateHealth(w http.ResponseWriter, r *http.Request) {
	scores, err := c.Service.RecalculateHealth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": scores})
}

func (c *CampaignController) TestAutoPause(w http.ResponseWriter, r *http.Request) {
	var body service.AutoPauseTest
	if !decode(w, r, &body) {
		return
	}
	res, err := c.Service.TestAutoPause(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) AttachSessions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionIDs []string `json:"session_ids"`
	}
	if !decode(w, r, &body) {
		return
	}
	sessions, err := c.Service.AttachSessions(r.Context(), chi.URLParam(r, "id"), body.SessionIDs)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (c *CampaignController) DetachSession(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.DetachSession(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sessionID")); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) AttachContacts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contacts []service.ContactInput `json:"contacts"`
	}
	if !decode(w, r, &body) {
		return
	}
	contacts, err := c.Service.AttachContacts(r.Context(), chi.URLParam(r, "id"), body.Contacts)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (c *CampaignController) DetachContact(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.DetachContact(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "contactID")); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := c.Service.ListTemplates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (c *CampaignController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body service.TemplateInput
	if !decode(w, r, &body) {
		return
	}
	tpl, err := c.Service.CreateTemplate(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

func (c *CampaignController) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var body service.TemplateInput
	if !decode(w, r, &body) {
		return
	}
	tpl, err := c.Service.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "templateID"), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (c *CampaignController) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := c.Service.DeleteTemplate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "templateID")); err != nil {
		c.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) ImportTemplates(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Templates       []service.TemplateInput `json:"templates"`
		ReplaceExisting bool                    `json:"replace_existing"`
	}
	if !decode(w, r, &body) {
		return
	}
	res, err := c.Service.ImportTemplates(r.Context(), chi.URLParam(r, "id"), body.Templates, body.ReplaceExisting)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (c *CampaignController) UpdateAutoRead(w http.ResponseWriter, r *http.Request) {
	var body service.AutoReadInput
	if !decode(w, r, &body) {
		return
	}
	cs, err := c.Service.UpdateAutoReadSettings(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}
