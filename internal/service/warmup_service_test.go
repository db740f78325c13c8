package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/repository"
	"github.com/unclebandit/warmup-engine/internal/service"
)

func TestCreateCampaignDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.CreateCampaign(f.ctx, "org", service.CampaignInput{Name: ptr("  defaults  ")})
	require.NoError(t, err)
	assert.Equal(t, "defaults", c.Name)
	assert.True(t, c.IsActive)
	assert.Equal(t, 50, c.DailyMessageGoal)
	assert.Equal(t, 30, c.MinIntervalMinutes)
	assert.Equal(t, 180, c.MaxIntervalMinutes)
	assert.Equal(t, 8, c.WorkingHourStart)
	assert.Equal(t, 18, c.WorkingHourEnd)
	assert.InDelta(t, 0.2, c.InternalConversationRatio, 1e-9)

	cases := map[string]service.CampaignInput{
		"missing name":       {},
		"min above max":      {Name: ptr("x"), MinIntervalMinutes: ptr(60), MaxIntervalMinutes: ptr(30)},
		"inverted hours":     {Name: ptr("x"), WorkingHourStart: ptr(18), WorkingHourEnd: ptr(8)},
		"goal out of range":  {Name: ptr("x"), DailyMessageGoal: ptr(0)},
		"ratio out of range": {Name: ptr("x"), InternalConversationRatio: ptr(1.5)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateCampaign(f.ctx, "org", in)
			assert.True(t, appErrors.IsValidation(err), "got %v", err)
		})
	}

	// equal bounds are fine when the interval is not randomized
	_, err = f.svc.CreateCampaign(f.ctx, "org", service.CampaignInput{
		Name:               ptr("fixed"),
		MinIntervalMinutes: ptr(30),
		MaxIntervalMinutes: ptr(30),
		RandomizeInterval:  ptr(false),
	})
	assert.NoError(t, err)
}

func TestCreateCampaignRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCampaign(f.ctx, "org", service.CampaignInput{Name: ptr("x"), SessionIDs: []string{"nope"}})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestUpdateCampaignRevalidatesMergedConfig(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})

	updated, err := f.svc.UpdateCampaign(f.ctx, c.ID, service.CampaignInput{DailyMessageGoal: ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.DailyMessageGoal)
	assert.Len(t, updated.Sessions, 1)

	_, err = f.svc.UpdateCampaign(f.ctx, c.ID, service.CampaignInput{MinIntervalMinutes: ptr(500)})
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.svc.UpdateCampaign(f.ctx, "missing", service.CampaignInput{})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestDeleteCampaignCascades(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, fastCampaign())
	_, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteCampaign(f.ctx, c.ID))
	_, err = f.svc.GetCampaign(f.ctx, c.ID)
	assert.True(t, appErrors.IsNotFound(err))
	assert.Empty(t, f.executions(t, c.ID))

	assert.True(t, appErrors.IsNotFound(f.svc.DeleteCampaign(f.ctx, c.ID)))
}

func TestListCampaignsPagination(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"C1", "C2", "C3", "C4", "C5"} {
		_, err := f.svc.CreateCampaign(f.ctx, "org", service.CampaignInput{Name: ptr(name)})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	page1, pagination1, err := f.svc.ListCampaigns(f.ctx, "org", 1, 2)
	require.NoError(t, err)
	page3, pagination3, err := f.svc.ListCampaigns(f.ctx, "org", 3, 2)
	require.NoError(t, err)

	assert.Equal(t, 5, pagination1["total_count"])
	assert.Equal(t, 3, pagination1["total_pages"])
	require.Len(t, page1, 2)
	assert.Equal(t, "C5", page1[0].Name)
	assert.Equal(t, "C4", page1[1].Name)
	require.Len(t, page3, 1)
	assert.Equal(t, "C1", page3[0].Name)
	assert.Equal(t, 3, pagination3["page"])

	_, clamped, err := f.svc.ListCampaigns(f.ctx, "org", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped["page"])
	assert.Equal(t, 100, clamped["page_size"])
}

func TestAttachAndDetachChildren(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})
	require.NoError(t, f.repos.Contacts.Create(f.ctx, &model.Contact{ID: "extra", Name: "Extra"}))

	contacts, err := f.svc.AttachContacts(f.ctx, c.ID, []service.ContactInput{{ContactID: "extra", Priority: 5}})
	require.NoError(t, err)
	assert.Len(t, contacts, 2)

	_, err = f.svc.AttachContacts(f.ctx, c.ID, []service.ContactInput{{ContactID: "extra", Priority: 9}})
	assert.True(t, appErrors.IsValidation(err))

	require.NoError(t, f.svc.DetachContact(f.ctx, c.ID, "extra"))
	assert.True(t, appErrors.IsNotFound(f.svc.DetachContact(f.ctx, c.ID, "extra")))

	require.NoError(t, f.svc.DetachSession(f.ctx, c.ID, "s1"))
	sessions, err := f.svc.AttachSessions(f.ctx, c.ID, []string{"s1"})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	_, err = f.svc.AttachSessions(f.ctx, c.ID, nil)
	assert.True(t, appErrors.IsValidation(err))
}

func TestPauseResumeConflicts(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})

	_, err := f.svc.Resume(f.ctx, c.ID)
	assert.True(t, appErrors.IsConflict(err), "resume on an active campaign")

	paused, err := f.svc.Pause(f.ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)

	_, err = f.svc.Pause(f.ctx, c.ID)
	assert.True(t, appErrors.IsConflict(err), "pause on a paused campaign")

	planned, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, planned, "paused campaigns are not planned")

	_, err = f.svc.Pause(f.ctx, "missing")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestResumeSchedulesTestExecutions(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})
	_, err := f.svc.Pause(f.ctx, c.ID)
	require.NoError(t, err)

	executions, err := f.svc.Resume(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, model.ExecutionExternal, executions[0].ExecutionType)
	assert.Equal(t, t0.Add(30*time.Second), executions[0].ScheduledAt)

	got, err := f.svc.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, 1, got.Sessions[0].DailyMessagesSent)

	var statuses []string
	for _, ev := range eventsOfType(f.events(), notify.EventCampaignStatus) {
		statuses = append(statuses, ev.Payload.(notify.CampaignStatus).Status)
	}
	assert.ElementsMatch(t, []string{model.CampaignStatusPaused, model.CampaignStatusActive}, statuses)
}

func TestResumeCapsTestExecutions(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 3, 1, service.CampaignInput{EnableInternalConversations: ptr(true)})
	_, err := f.svc.Pause(f.ctx, c.ID)
	require.NoError(t, err)

	executions, err := f.svc.Resume(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, executions, service.MaxTestExecutions)

	assert.Equal(t, model.ExecutionInternal, executions[0].ExecutionType)
	assert.Equal(t, "s2", *executions[0].ToSessionID)
	assert.Equal(t, model.ExecutionExternal, executions[1].ExecutionType)
	assert.Equal(t, model.ExecutionInternal, executions[2].ExecutionType)
	assert.Equal(t, t0.Add(60*time.Second), executions[2].ScheduledAt)
	for _, e := range executions {
		assert.True(t, e.TargetConsistent())
	}
}

func TestResumeWithoutTemplatesSchedulesNothing(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateCampaign(f.ctx, "org", service.CampaignInput{Name: ptr("bare")})
	require.NoError(t, err)
	_, err = f.svc.Pause(f.ctx, c.ID)
	require.NoError(t, err)

	executions, err := f.svc.Resume(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestForceExecution(t *testing.T) {
	f := newFixture(t)
	in := service.CampaignInput{EnableInternalConversations: ptr(true)}
	c := f.seed(t, 2, 1, in)
	tpl, err := f.svc.CreateTemplate(f.ctx, c.ID, service.TemplateInput{Name: ptr("forced"), Content: ptr("{saudacao}, {nome}!")})
	require.NoError(t, err)

	e, err := f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{
		ExecutionType: model.ExecutionInternal,
		FromSessionID: "s1",
		ToSessionID:   "s2",
		TemplateID:    tpl.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, t0, e.ScheduledAt)
	assert.Equal(t, "Bom dia, Session 2!", e.MessageContent)
	assert.Equal(t, tpl.ID, *e.TemplateID)
	assert.Equal(t, 1, f.campaignSession(t, c.ID, "s1").DailyMessagesSent)

	e, err = f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{
		ExecutionType: model.ExecutionExternal,
		FromSessionID: "s2",
		ContactID:     "k1",
		TemplateID:    "unknown",
	})
	require.NoError(t, err)
	require.NotNil(t, e.ContactID)
	assert.NotNil(t, e.TemplateID, "falls back to a random active template")

	_, err = f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{ExecutionType: model.ExecutionExternal, FromSessionID: "nobody", ContactID: "k1"})
	assert.True(t, appErrors.IsNotFound(err))
	_, err = f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{ExecutionType: model.ExecutionInternal, FromSessionID: "s1", ToSessionID: "s1"})
	assert.True(t, appErrors.IsValidation(err))
	_, err = f.svc.ForceExecution(f.ctx, c.ID, service.ForceInput{ExecutionType: "broadcast", FromSessionID: "s1"})
	assert.True(t, appErrors.IsValidation(err))
}

func TestImportTemplatesReplaceExisting(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})
	_, err := f.svc.CreateTemplate(f.ctx, c.ID, service.TemplateInput{Name: ptr("old"), Content: ptr("old")})
	require.NoError(t, err)

	res, err := f.svc.ImportTemplates(f.ctx, c.ID, []service.TemplateInput{
		{Name: ptr("a"), Content: ptr("  first  "), Weight: ptr(50)},
		{Name: ptr("b"), Content: ptr("second"), MessageType: ptr(model.MessageTypeImage)},
		{Name: ptr("c"), Content: ptr("third"), IsActive: ptr(true)},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, service.ImportSummary{
		TotalImported:        3,
		SuccessfulImports:    3,
		FailedImports:        0,
		ReplaceExisting:      true,
		TotalActiveTemplates: 3,
	}, res.Summary)
	require.Len(t, res.CreatedTemplates, 3)
	assert.Equal(t, "first", res.CreatedTemplates[0].Content)
	assert.Equal(t, 10, res.CreatedTemplates[0].Weight)
	assert.Equal(t, model.MessageTypeText, res.CreatedTemplates[0].MessageType)
	assert.Equal(t, model.MessageTypeImage, res.CreatedTemplates[1].MessageType)

	active, err := f.repos.Templates.CountActive(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, active)

	res, err = f.svc.ImportTemplates(f.ctx, c.ID, []service.TemplateInput{{Name: ptr("d"), Content: ptr("fourth")}}, false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary.TotalActiveTemplates)
}

func TestImportTemplatesValidation(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})

	_, err := f.svc.ImportTemplates(f.ctx, c.ID, nil, true)
	assert.True(t, appErrors.IsValidation(err))

	_, err = f.svc.ImportTemplates(f.ctx, c.ID, []service.TemplateInput{
		{Name: ptr("ok"), Content: ptr("fine")},
		{Name: ptr("broken"), Content: ptr("   ")},
	}, true)
	require.True(t, appErrors.IsValidation(err))
	assert.Contains(t, err.Error(), "templates[1]")

	active, err := f.repos.Templates.CountActive(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active, "nothing changes when an entry is invalid")
}

type failingTemplates struct {
	repository.TemplateRepositoryInterface
	failAt  int
	creates int
}

func (r *failingTemplates) Create(ctx context.Context, t *model.MessageTemplate) error {
	r.creates++
	if r.creates == r.failAt {
		return errors.New("insert rejected")
	}
	return r.TemplateRepositoryInterface.Create(ctx, t)
}

type recordingTx struct {
	repository.Provider
	err error
}

func (p *recordingTx) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	p.err = p.Provider.Transact(ctx, fn)
	return p.err
}

func TestImportTemplatesStopsAtFirstFailedInsert(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})

	templates := &failingTemplates{TemplateRepositoryInterface: f.repos.Templates, failAt: 2}
	tx := &recordingTx{Provider: f.repos.Tx}
	f.repos.Templates = templates
	f.repos.Tx = tx

	res, err := f.svc.ImportTemplates(f.ctx, c.ID, []service.TemplateInput{
		{Name: ptr("a"), Content: ptr("first")},
		{Name: ptr("b"), Content: ptr("second")},
		{Name: ptr("c"), Content: ptr("third")},
	}, true)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "create template 2 (b)")
	assert.Equal(t, 2, templates.creates, "no insert is attempted after a failure")
	assert.Equal(t, err, tx.err, "the transaction sees the failure and rolls back")
}

func TestTemplateCRUD(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})

	tpl, err := f.svc.CreateTemplate(f.ctx, c.ID, service.TemplateInput{Name: ptr("n"), Content: ptr("c"), MessageType: ptr("sticker")})
	assert.True(t, appErrors.IsValidation(err))
	assert.Nil(t, tpl)

	tpl, err = f.svc.CreateTemplate(f.ctx, c.ID, service.TemplateInput{Name: ptr("n"), Content: ptr("c")})
	require.NoError(t, err)
	updated, err := f.svc.UpdateTemplate(f.ctx, c.ID, tpl.ID, service.TemplateInput{Weight: ptr(0), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Weight)
	assert.False(t, updated.IsActive)

	_, err = f.svc.UpdateTemplate(f.ctx, "other", tpl.ID, service.TemplateInput{})
	assert.True(t, appErrors.IsNotFound(err))

	require.NoError(t, f.svc.DeleteTemplate(f.ctx, c.ID, tpl.ID))
	all, err := f.svc.ListTemplates(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTestAutoPauseResetsSessions(t *testing.T) {
	f := newFixture(t)
	in := fastCampaign()
	in.EnableAutoPauses = ptr(true)
	c := f.seed(t, 2, 1, in)
	_, err := f.planner.PlanAll(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, f.campaignSession(t, c.ID, "s1").ConversationStartedAt)

	res, err := f.svc.TestAutoPause(f.ctx, c.ID, service.AutoPauseTest{
		EnableAutoPauses:           true,
		MaxPauseTimeMinutes:        2,
		MinConversationTimeMinutes: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalSessions)
	assert.False(t, res.RandomizeInterval)

	got, err := f.svc.GetCampaign(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxPauseTimeMinutes)
	assert.Equal(t, 1, got.MinConversationTimeMinutes)
	assert.False(t, got.RandomizeInterval)
	for _, cs := range got.Sessions {
		assert.Nil(t, cs.ConversationStartedAt)
		assert.Nil(t, cs.CurrentPauseUntil)
	}

	_, err = f.svc.TestAutoPause(f.ctx, c.ID, service.AutoPauseTest{MaxPauseTimeMinutes: 0, MinConversationTimeMinutes: 1})
	assert.True(t, appErrors.IsValidation(err))
}

func TestUpdateAutoReadSettings(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 1, 1, service.CampaignInput{})
	cs := f.campaignSession(t, c.ID, "s1")

	updated, err := f.svc.UpdateAutoReadSettings(f.ctx, cs.ID, service.AutoReadInput{Enabled: ptr(true), Interval: ptr(30)})
	require.NoError(t, err)
	assert.True(t, updated.AutoReadEnabled)
	assert.Equal(t, 30, updated.AutoReadInterval)
	assert.Equal(t, 5, updated.AutoReadMinDelay)

	_, err = f.svc.UpdateAutoReadSettings(f.ctx, cs.ID, service.AutoReadInput{MinDelay: ptr(40)})
	assert.True(t, appErrors.IsValidation(err), "min delay above max delay")

	_, err = f.svc.UpdateAutoReadSettings(f.ctx, "missing", service.AutoReadInput{})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestRecalculateHealth(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 2, 1, service.CampaignInput{})

	scores, err := f.svc.RecalculateHealth(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	for _, s := range scores {
		assert.Equal(t, 100.0, s.HealthScore, "no history keeps the neutral score")
	}
	assert.Len(t, eventsOfType(f.events(), notify.EventBotHealth), 2)
}
