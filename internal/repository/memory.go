package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/warmup-engine/internal/clock"
	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
)

// memoryStore keeps every entity in process. Each call is atomic on its own;
// Transact does not provide isolation across calls.
type memoryStore struct {
	mu    sync.RWMutex
	clock clock.Clock
	seq   int64

	campaigns        map[string]*model.Campaign
	campaignSessions map[string]*model.CampaignSession
	campaignContacts map[string]*model.CampaignContact
	templates        map[string]*model.MessageTemplate
	executions       map[string]*model.Execution
	metrics          map[string]*model.HealthMetric
	sessions         map[string]*model.Session
	contacts         map[string]*model.Contact

	order map[string]int64
	due   *TimeQueue
}

// NewMemory returns repositories backed by process memory.
func NewMemory(c clock.Clock) *Repositories {
	s := &memoryStore{
		clock:            c,
		campaigns:        map[string]*model.Campaign{},
		campaignSessions: map[string]*model.CampaignSession{},
		campaignContacts: map[string]*model.CampaignContact{},
		templates:        map[string]*model.MessageTemplate{},
		executions:       map[string]*model.Execution{},
		metrics:          map[string]*model.HealthMetric{},
		sessions:         map[string]*model.Session{},
		contacts:         map[string]*model.Contact{},
		order:            map[string]int64{},
		due:              NewTimeQueue(),
	}
	return &Repositories{
		Campaigns:        memCampaigns{s},
		CampaignSessions: memCampaignSessions{s},
		CampaignContacts: memCampaignContacts{s},
		Templates:        memTemplates{s},
		Executions:       memExecutions{s},
		HealthMetrics:    memHealthMetrics{s},
		Sessions:         memSessions{s},
		Contacts:         memContacts{s},
		Tx:               memProvider{},
	}
}

func (s *memoryStore) track(id string) {
	s.seq++
	s.order[id] = s.seq
}

func (s *memoryStore) newID(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	s.track(id)
	return id
}

func sortByOrder[T any](s *memoryStore, items []*T, id func(*T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return s.order[id(items[i])] < s.order[id(items[j])]
	})
}

type memProvider struct{}

func (memProvider) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ====================== Campaigns ======================

type memCampaigns struct{ s *memoryStore }

func (m memCampaigns) Create(_ context.Context, c *model.Campaign) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c.ID = m.s.newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.s.clock.Now()
	}
	cp := *c
	cp.Sessions, cp.Contacts, cp.Templates = nil, nil, nil
	m.s.campaigns[c.ID] = &cp
	return nil
}

func (m memCampaigns) Update(_ context.Context, c *model.Campaign) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	existing, ok := m.s.campaigns[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	now := m.s.clock.Now()
	c.UpdatedAt = &now
	cp := *c
	cp.IsActive = existing.IsActive
	cp.CreatedAt = existing.CreatedAt
	cp.Sessions, cp.Contacts, cp.Templates = nil, nil, nil
	m.s.campaigns[c.ID] = &cp
	return nil
}

func (m memCampaigns) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.campaigns[id]; !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	delete(m.s.campaigns, id)
	for k, cs := range m.s.campaignSessions {
		if cs.CampaignID == id {
			for mk, hm := range m.s.metrics {
				if hm.CampaignSessionID == k {
					delete(m.s.metrics, mk)
				}
			}
			delete(m.s.campaignSessions, k)
		}
	}
	for k, cc := range m.s.campaignContacts {
		if cc.CampaignID == id {
			delete(m.s.campaignContacts, k)
		}
	}
	for k, t := range m.s.templates {
		if t.CampaignID == id {
			delete(m.s.templates, k)
		}
	}
	for k, e := range m.s.executions {
		if e.CampaignID == id {
			m.s.due.Remove(k)
			delete(m.s.executions, k)
		}
	}
	return nil
}

func (m memCampaigns) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m memCampaigns) ListCampaigns(_ context.Context, organizationID string, offset, limit int) ([]*model.Campaign, int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	all := m.s.campaignsWhere(func(c *model.Campaign) bool {
		return organizationID == "" || c.OrganizationID == organizationID
	})
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m memCampaigns) SetActive(_ context.Context, id string, active bool) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[id]
	if !ok || c.IsActive == active {
		return false, nil
	}
	c.IsActive = active
	now := m.s.clock.Now()
	c.UpdatedAt = &now
	return true, nil
}

func (m memCampaigns) GetWithChildren(_ context.Context, id string, activeOnly bool) (*model.Campaign, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return m.s.withChildren(c, activeOnly), nil
}

func (m memCampaigns) ListActiveWithChildren(_ context.Context) ([]*model.Campaign, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*model.Campaign{}
	for _, c := range m.s.campaignsWhere(func(c *model.Campaign) bool { return c.IsActive }) {
		out = append(out, m.s.withChildren(c, true))
	}
	return out, nil
}

func (m memCampaigns) ListByOrganization(_ context.Context, organizationID string) ([]*model.Campaign, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*model.Campaign{}
	for _, c := range m.s.campaignsWhere(func(c *model.Campaign) bool { return c.OrganizationID == organizationID }) {
		out = append(out, m.s.withChildren(c, false))
	}
	return out, nil
}

// campaignsWhere returns copies in creation order. Caller holds the lock.
func (s *memoryStore) campaignsWhere(keep func(*model.Campaign) bool) []*model.Campaign {
	out := []*model.Campaign{}
	for _, c := range s.campaigns {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByOrder(s, out, func(c *model.Campaign) string { return c.ID })
	return out
}

// withChildren copies c and attaches its children. Caller holds the lock.
func (s *memoryStore) withChildren(c *model.Campaign, activeOnly bool) *model.Campaign {
	cp := *c
	cp.Sessions, cp.Contacts, cp.Templates = nil, nil, nil
	for _, cs := range s.sessionsOf(c.ID) {
		sess, ok := s.sessions[cs.SessionID]
		if !ok || (activeOnly && !cs.IsActive) {
			continue
		}
		sc := *sess
		cs.Session = &sc
		cp.Sessions = append(cp.Sessions, cs)
	}
	for _, cc := range s.contactsOf(c.ID) {
		contact, ok := s.contacts[cc.ContactID]
		if !ok || (activeOnly && !cc.IsActive) {
			continue
		}
		ct := *contact
		cc.Contact = &ct
		cp.Contacts = append(cp.Contacts, cc)
	}
	for _, t := range s.templatesOf(c.ID) {
		if activeOnly && !t.IsActive {
			continue
		}
		cp.Templates = append(cp.Templates, t)
	}
	return &cp
}

func (s *memoryStore) sessionsOf(campaignID string) []*model.CampaignSession {
	out := []*model.CampaignSession{}
	for _, cs := range s.campaignSessions {
		if cs.CampaignID == campaignID {
			cp := *cs
			out = append(out, &cp)
		}
	}
	sortByOrder(s, out, func(cs *model.CampaignSession) string { return cs.ID })
	return out
}

func (s *memoryStore) contactsOf(campaignID string) []*model.CampaignContact {
	out := []*model.CampaignContact{}
	for _, cc := range s.campaignContacts {
		if cc.CampaignID == campaignID {
			cp := *cc
			out = append(out, &cp)
		}
	}
	sortByOrder(s, out, func(cc *model.CampaignContact) string { return cc.ID })
	return out
}

func (s *memoryStore) templatesOf(campaignID string) []*model.MessageTemplate {
	out := []*model.MessageTemplate{}
	for _, t := range s.templates {
		if t.CampaignID == campaignID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sortByOrder(s, out, func(t *model.MessageTemplate) string { return t.ID })
	return out
}

// ====================== Campaign sessions ======================

type memCampaignSessions struct{ s *memoryStore }

func (m memCampaignSessions) Attach(_ context.Context, campaignID, sessionID string, today time.Time) (*model.CampaignSession, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, cs := range m.s.campaignSessions {
		if cs.CampaignID == campaignID && cs.SessionID == sessionID {
			cs.IsActive = true
			cp := *cs
			return &cp, nil
		}
	}
	cs := &model.CampaignSession{
		ID:               m.s.newID(""),
		CampaignID:       campaignID,
		SessionID:        sessionID,
		LastResetDate:    today,
		HealthScore:      100,
		AutoReadInterval: 60,
		AutoReadMinDelay: 5,
		AutoReadMaxDelay: 30,
		IsActive:         true,
		CreatedAt:        m.s.clock.Now(),
	}
	m.s.campaignSessions[cs.ID] = cs
	cp := *cs
	return &cp, nil
}

func (m memCampaignSessions) Detach(_ context.Context, campaignID, sessionID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, cs := range m.s.campaignSessions {
		if cs.CampaignID == campaignID && cs.SessionID == sessionID {
			delete(m.s.campaignSessions, id)
			return nil
		}
	}
	return appErrors.NewSessionNotFound(sessionID)
}

func (m memCampaignSessions) GetByID(_ context.Context, id string) (*model.CampaignSession, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	cs, ok := m.s.campaignSessions[id]
	if !ok {
		return nil, appErrors.NewSessionNotFound(id)
	}
	cp := *cs
	return &cp, nil
}

func (m memCampaignSessions) GetByCampaignAndSession(_ context.Context, campaignID, sessionID string) (*model.CampaignSession, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, cs := range m.s.campaignSessions {
		if cs.CampaignID == campaignID && cs.SessionID == sessionID {
			cp := *cs
			return &cp, nil
		}
	}
	return nil, appErrors.NewSessionNotFound(sessionID)
}

func (m memCampaignSessions) ListByCampaign(_ context.Context, campaignID string) ([]*model.CampaignSession, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.sessionsOf(campaignID), nil
}

func (m memCampaignSessions) ResetDaily(_ context.Context, id string, today time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cs, ok := m.s.campaignSessions[id]
	if !ok {
		return false, appErrors.NewSessionNotFound(id)
	}
	if !cs.LastResetDate.Before(today) {
		return false, nil
	}
	cs.DailyMessagesSent = 0
	cs.LastResetDate = today
	return true, nil
}

func (m memCampaignSessions) IncrementCounters(_ context.Context, id string, lastMessageAt time.Time) (int, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cs, ok := m.s.campaignSessions[id]
	if !ok {
		return 0, 0, appErrors.NewSessionNotFound(id)
	}
	cs.DailyMessagesSent++
	cs.TotalMessagesSent++
	at := lastMessageAt
	cs.LastMessageAt = &at
	return cs.DailyMessagesSent, cs.TotalMessagesSent, nil
}

func (m memCampaignSessions) UpdateHealthScore(_ context.Context, id string, score float64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cs, ok := m.s.campaignSessions[id]
	if !ok {
		return appErrors.NewSessionNotFound(id)
	}
	cs.HealthScore = score
	return nil
}

func (m memCampaignSessions) UpdatePauseState(_ context.Context, id string, state PauseState) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cs, ok := m.s.campaignSessions[id]
	if !ok {
		return appErrors.NewSessionNotFound(id)
	}
	cs.CurrentPauseUntil = state.CurrentPauseUntil
	cs.ConversationStartedAt = state.ConversationStartedAt
	cs.LastConversationStart = state.LastConversationStart
	return nil
}

func (m memCampaignSessions) ResetPauses(_ context.Context, campaignID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, cs := range m.s.campaignSessions {
		if cs.CampaignID == campaignID {
			cs.CurrentPauseUntil = nil
			cs.ConversationStartedAt = nil
			cs.LastConversationStart = nil
		}
	}
	return nil
}

func (m memCampaignSessions) UpdateAutoRead(_ context.Context, in *model.CampaignSession) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cs, ok := m.s.campaignSessions[in.ID]
	if !ok {
		return appErrors.NewSessionNotFound(in.ID)
	}
	cs.AutoReadEnabled = in.AutoReadEnabled
	cs.AutoReadInterval = in.AutoReadInterval
	cs.AutoReadMinDelay = in.AutoReadMinDelay
	cs.AutoReadMaxDelay = in.AutoReadMaxDelay
	return nil
}

// ====================== Campaign contacts ======================

type memCampaignContacts struct{ s *memoryStore }

func (m memCampaignContacts) Attach(_ context.Context, campaignID, contactID string, priority int) (*model.CampaignContact, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, cc := range m.s.campaignContacts {
		if cc.CampaignID == campaignID && cc.ContactID == contactID {
			cc.IsActive = true
			cc.Priority = priority
			cp := *cc
			return &cp, nil
		}
	}
	cc := &model.CampaignContact{
		ID:         m.s.newID(""),
		CampaignID: campaignID,
		ContactID:  contactID,
		Priority:   priority,
		IsActive:   true,
		CreatedAt:  m.s.clock.Now(),
	}
	m.s.campaignContacts[cc.ID] = cc
	cp := *cc
	return &cp, nil
}

func (m memCampaignContacts) Detach(_ context.Context, campaignID, contactID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, cc := range m.s.campaignContacts {
		if cc.CampaignID == campaignID && cc.ContactID == contactID {
			delete(m.s.campaignContacts, id)
			return nil
		}
	}
	return appErrors.NewContactNotFound(contactID)
}

func (m memCampaignContacts) ListByCampaign(_ context.Context, campaignID string) ([]*model.CampaignContact, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.contactsOf(campaignID), nil
}

// ====================== Templates ======================

type memTemplates struct{ s *memoryStore }

func (m memTemplates) Create(_ context.Context, t *model.MessageTemplate) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t.ID = m.s.newID(t.ID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.s.clock.Now()
	}
	cp := *t
	m.s.templates[t.ID] = &cp
	return nil
}

func (m memTemplates) Update(_ context.Context, t *model.MessageTemplate) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	existing, ok := m.s.templates[t.ID]
	if !ok || existing.CampaignID != t.CampaignID {
		return appErrors.NewTemplateNotFound(t.ID)
	}
	now := m.s.clock.Now()
	t.UpdatedAt = &now
	cp := *t
	cp.CreatedAt = existing.CreatedAt
	m.s.templates[t.ID] = &cp
	return nil
}

func (m memTemplates) Delete(_ context.Context, campaignID, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.templates[id]
	if !ok || t.CampaignID != campaignID {
		return appErrors.NewTemplateNotFound(id)
	}
	delete(m.s.templates, id)
	for _, e := range m.s.executions {
		if e.TemplateID != nil && *e.TemplateID == id {
			e.TemplateID = nil
		}
	}
	return nil
}

func (m memTemplates) GetByID(_ context.Context, id string) (*model.MessageTemplate, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	t, ok := m.s.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	cp := *t
	return &cp, nil
}

func (m memTemplates) ListByCampaign(_ context.Context, campaignID string, activeOnly bool) ([]*model.MessageTemplate, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*model.MessageTemplate{}
	for _, t := range m.s.templatesOf(campaignID) {
		if !activeOnly || t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m memTemplates) DeactivateAll(_ context.Context, campaignID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.templates {
		if t.CampaignID == campaignID {
			t.IsActive = false
		}
	}
	return nil
}

func (m memTemplates) CountActive(_ context.Context, campaignID string) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	n := 0
	for _, t := range m.s.templates {
		if t.CampaignID == campaignID && t.IsActive {
			n++
		}
	}
	return n, nil
}

// ====================== Executions ======================

type memExecutions struct{ s *memoryStore }

func (m memExecutions) Create(_ context.Context, e *model.Execution) error {
	if !e.TargetConsistent() {
		return appErrors.NewValidation("execution_type", "target does not match type %q", e.ExecutionType)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e.ID = m.s.newID(e.ID)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.s.clock.Now()
	}
	cp := *e
	m.s.executions[e.ID] = &cp
	if cp.Status == model.ExecutionScheduled {
		m.s.due.Set(cp.ID, cp.ScheduledAt)
	}
	return nil
}

func (m memExecutions) GetByID(_ context.Context, id string) (*model.Execution, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	e, ok := m.s.executions[id]
	if !ok {
		return nil, appErrors.NewExecutionNotFound(id)
	}
	cp := *e
	return &cp, nil
}

// ListDue takes the write lock: Due reorders the heap while it walks it.
func (m memExecutions) ListDue(_ context.Context, now time.Time, limit int) ([]*model.Execution, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*model.Execution{}
	for _, id := range m.s.due.Due(now, limit) {
		cp := *m.s.executions[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m memExecutions) MarkSent(_ context.Context, id string, sentAt time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.executions[id]
	if !ok || e.Status != model.ExecutionScheduled {
		return false, nil
	}
	at := sentAt
	e.Status = model.ExecutionSent
	e.SentAt = &at
	m.s.due.Remove(id)
	return true, nil
}

func (m memExecutions) MarkFailed(_ context.Context, id, errorMessage string, at time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.executions[id]
	if !ok || e.Status != model.ExecutionScheduled {
		return false, nil
	}
	failedAt := at
	msg := errorMessage
	e.Status = model.ExecutionFailed
	e.SentAt = &failedAt
	e.ErrorMessage = &msg
	m.s.due.Remove(id)
	return true, nil
}

func (m memExecutions) Reschedule(_ context.Context, id string, scheduledAt time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	e, ok := m.s.executions[id]
	if !ok || e.Status != model.ExecutionScheduled {
		return false, nil
	}
	e.ScheduledAt = scheduledAt
	m.s.due.Set(id, scheduledAt)
	return true, nil
}

func matchesExecution(e *model.Execution, f ExecutionFilter) bool {
	if len(f.CampaignIDs) > 0 {
		found := false
		for _, id := range f.CampaignIDs {
			if id == e.CampaignID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ExecutionType != "" && e.ExecutionType != f.ExecutionType {
		return false
	}
	if f.FromSessionID != "" && e.FromSessionID != f.FromSessionID {
		return false
	}
	if f.ToSessionID != "" && (e.ToSessionID == nil || *e.ToSessionID != f.ToSessionID) {
		return false
	}
	if f.Start != nil && e.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.CreatedAt.After(*f.End) {
		return false
	}
	return true
}

func (m memExecutions) List(_ context.Context, f ExecutionFilter) ([]*model.Execution, int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	matched := []*model.Execution{}
	for _, e := range m.s.executions {
		if matchesExecution(e, f) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return m.s.order[matched[i].ID] > m.s.order[matched[j].ID]
	})
	total := len(matched)
	if f.Limit <= 0 {
		return matched, total, nil
	}
	if f.Offset >= total {
		return []*model.Execution{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (m memExecutions) CountGrouped(_ context.Context, f ExecutionFilter) ([]ExecutionCount, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	type key struct {
		t  model.ExecutionType
		st model.ExecutionStatus
	}
	counts := map[key]int{}
	for _, e := range m.s.executions {
		if matchesExecution(e, f) {
			counts[key{e.ExecutionType, e.Status}]++
		}
	}
	out := make([]ExecutionCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, ExecutionCount{ExecutionType: k.t, Status: k.st, Count: n})
	}
	return out, nil
}

// ====================== Health metrics ======================

type memHealthMetrics struct{ s *memoryStore }

func metricKey(campaignSessionID string, day time.Time) string {
	return campaignSessionID + "|" + day.Format("2006-01-02")
}

func (m memHealthMetrics) IncrementDay(_ context.Context, campaignSessionID string, day time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	k := metricKey(campaignSessionID, day)
	if hm, ok := m.s.metrics[k]; ok {
		hm.MessagesSent++
		hm.MessagesDelivered++
		return nil
	}
	m.s.metrics[k] = &model.HealthMetric{
		ID:                m.s.newID(""),
		CampaignSessionID: campaignSessionID,
		Date:              day,
		MessagesSent:      1,
		MessagesDelivered: 1,
		HealthScore:       100,
	}
	return nil
}

func (m memHealthMetrics) ListSince(_ context.Context, campaignSessionID string, since time.Time) ([]*model.HealthMetric, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []*model.HealthMetric{}
	for _, hm := range m.s.metrics {
		if hm.CampaignSessionID == campaignSessionID && !hm.Date.Before(since) {
			cp := *hm
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m memHealthMetrics) UpdateScore(_ context.Context, campaignSessionID string, day time.Time, score, avgPerHour float64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if hm, ok := m.s.metrics[metricKey(campaignSessionID, day)]; ok {
		hm.HealthScore = score
		hm.AverageMessagesPerHour = avgPerHour
	}
	return nil
}

// ====================== Directory ======================

type memSessions struct{ s *memoryStore }

func (m memSessions) Create(_ context.Context, sess *model.Session) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sess.ID = m.s.newID(sess.ID)
	cp := *sess
	m.s.sessions[sess.ID] = &cp
	return nil
}

func (m memSessions) GetByID(_ context.Context, id string) (*model.Session, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	sess, ok := m.s.sessions[id]
	if !ok {
		return nil, appErrors.NewSessionNotFound(id)
	}
	cp := *sess
	return &cp, nil
}

type memContacts struct{ s *memoryStore }

func (m memContacts) Create(_ context.Context, c *model.Contact) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c.ID = m.s.newID(c.ID)
	cp := *c
	m.s.contacts[c.ID] = &cp
	return nil
}

func (m memContacts) GetByID(_ context.Context, id string) (*model.Contact, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	c, ok := m.s.contacts[id]
	if !ok {
		return nil, appErrors.NewContactNotFound(id)
	}
	cp := *c
	return &cp, nil
}
