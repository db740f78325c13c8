package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/selection"
)

var ErrMockSendFailed = errors.New("mock sending failed")

// Mock simulates the transport. Sends succeed with probability SuccessRate
// and every session reports CONNECTED unless overridden with SetStatus.
type Mock struct {
	SuccessRate float64
	Rand        *selection.Source

	mu       sync.Mutex
	statuses map[string]string
	chats    map[string][]string
	sent     []Message
	reads    []string
}

func NewMock(successRate float64, rnd *selection.Source) *Mock {
	return &Mock{
		SuccessRate: successRate,
		Rand:        rnd,
		statuses:    map[string]string{},
		chats:       map[string][]string{},
	}
}

func (m *Mock) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Rand.Float64() >= m.SuccessRate {
		return "", ErrMockSendFailed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return uuid.NewString(), nil
}

func (m *Mock) Status(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.statuses[sessionID]; ok {
		return s, nil
	}
	return model.SessionStatusConnected, nil
}

func (m *Mock) MarkRead(_ context.Context, sessionID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, sessionID+"/"+chatID)
	return nil
}

func (m *Mock) ActiveChats(_ context.Context, sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.chats[sessionID]...), nil
}

func (m *Mock) SetStatus(sessionID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[sessionID] = status
}

func (m *Mock) SetChats(sessionID string, chats ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[sessionID] = chats
}

// Sent returns a copy of every message accepted so far.
func (m *Mock) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Reads returns "session/chat" for every MarkRead call.
func (m *Mock) Reads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reads...)
}
