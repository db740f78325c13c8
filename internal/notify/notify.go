// Package notify publishes best-effort warmup events for operators. Every
// event is wrapped in an Event envelope and published on topic "warmup.<type>".
// Publishing failures are logged and never returned to the caller.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/queue"
)

const (
	EventProgress       = "warmup_progress"
	EventExecution      = "warmup_execution"
	EventHealthUpdate   = "health_update"
	EventDailyLimit     = "daily_limit_reached"
	EventCampaignStatus = "campaign_status"
	EventCampaignLog    = "campaign_log"
	EventExecutionLog   = "execution_log"
	EventBotHealth      = "bot_health"
)

// EventTypes lists every event type the engine emits.
var EventTypes = []string{
	EventProgress, EventExecution, EventHealthUpdate, EventDailyLimit,
	EventCampaignStatus, EventCampaignLog, EventExecutionLog, EventBotHealth,
}

// Topic returns the queue topic for an event type.
func Topic(eventType string) string {
	return "warmup." + eventType
}

// Event is the envelope published on the queue.
type Event struct {
	OrganizationID string    `json:"organization_id"`
	Type           string    `json:"type"`
	Payload        any       `json:"payload"`
	EmittedAt      time.Time `json:"emitted_at"`
}

// Notifier is the Notification Sink.
type Notifier struct {
	Queue  queue.Queue
	Clock  clock.Clock
	Logger *zap.Logger
}

func New(q queue.Queue, c clock.Clock, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{Queue: q, Clock: c, Logger: logger}
}

// Emit publishes payload. It never fails; publish errors are only logged.
func (n *Notifier) Emit(_ context.Context, organizationID, eventType string, payload any) {
	if n == nil || n.Queue == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.Logger.Error("notification publish panicked", zap.String("type", eventType), zap.Any("panic", r))
		}
	}()

	ev := Event{
		OrganizationID: organizationID,
		Type:           eventType,
		Payload:        payload,
		EmittedAt:      n.Clock.Now(),
	}
	if err := n.Queue.Publish(Topic(eventType), ev); err != nil {
		if errors.Is(err, queue.ErrNoSubscribers) {
			n.Logger.Debug("notification dropped", zap.String("type", eventType))
			return
		}
		n.Logger.Warn("failed to publish notification",
			zap.String("type", eventType),
			zap.String("organization_id", organizationID),
			zap.Error(err))
	}
}

func (n *Notifier) Progress(ctx context.Context, organizationID string, p Progress) {
	n.Emit(ctx, organizationID, EventProgress, p)
}

func (n *Notifier) Execution(ctx context.Context, organizationID string, p Execution) {
	n.Emit(ctx, organizationID, EventExecution, p)
}

func (n *Notifier) HealthUpdate(ctx context.Context, organizationID string, p HealthUpdate) {
	n.Emit(ctx, organizationID, EventHealthUpdate, p)
}

func (n *Notifier) DailyLimitReached(ctx context.Context, organizationID string, p DailyLimit) {
	n.Emit(ctx, organizationID, EventDailyLimit, p)
}

func (n *Notifier) CampaignStatus(ctx context.Context, organizationID string, p CampaignStatus) {
	n.Emit(ctx, organizationID, EventCampaignStatus, p)
}

func (n *Notifier) ExecutionLog(ctx context.Context, organizationID string, p ExecutionLog) {
	n.Emit(ctx, organizationID, EventExecutionLog, p)
}

// BotHealth emits a bot_health event; Status is derived from the score.
func (n *Notifier) BotHealth(ctx context.Context, organizationID string, p BotHealth) {
	p.Status = HealthStatus(p.HealthScore)
	n.Emit(ctx, organizationID, EventBotHealth, p)
}

// Log levels of campaign_log events.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

func (n *Notifier) CampaignLog(ctx context.Context, organizationID string, p CampaignLog) {
	if n == nil {
		return
	}
	p.Timestamp = n.Clock.Now()
	n.Emit(ctx, organizationID, EventCampaignLog, p)
}

func (n *Notifier) LogInfo(ctx context.Context, organizationID string, p CampaignLog) {
	p.Level = LevelInfo
	n.CampaignLog(ctx, organizationID, p)
}

func (n *Notifier) LogWarning(ctx context.Context, organizationID string, p CampaignLog) {
	p.Level = LevelWarning
	n.CampaignLog(ctx, organizationID, p)
}

func (n *Notifier) LogError(ctx context.Context, organizationID string, p CampaignLog) {
	p.Level = LevelError
	n.CampaignLog(ctx, organizationID, p)
}

func (n *Notifier) LogSuccess(ctx context.Context, organizationID string, p CampaignLog) {
	p.Level = LevelSuccess
	n.CampaignLog(ctx, organizationID, p)
}

// HealthStatus buckets a health score.
func HealthStatus(score float64) string {
	switch {
	case score >= 80:
		return "healthy"
	case score >= 60:
		return "warning"
	case score >= 30:
		return "critical"
	default:
		return "offline"
	}
}
