// internal/service/autoread.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/model"
)

// KeyedTimes remembers the last time something happened per key.
type KeyedTimes interface {
	Get(key string) (time.Time, bool)
	Set(key string, t time.Time)
}

type MemoryKeyedTimes struct {
	mu    sync.Mutex
	times map[string]time.Time
}

func NewMemoryKeyedTimes() *MemoryKeyedTimes {
	return &MemoryKeyedTimes{times: map[string]time.Time{}}
}

func (m *MemoryKeyedTimes) Get(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.times[key]
	return t, ok
}

func (m *MemoryKeyedTimes) Set(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.times[key] = t
}

// AutoReader marks the unread chats of warming sessions as read after a
// short random delay.
type AutoReader struct {
	*Deps
	Times KeyedTimes

	wg sync.WaitGroup
}

func NewAutoReader(d *Deps, times KeyedTimes) *AutoReader {
	if times == nil {
		times = NewMemoryKeyedTimes()
	}
	return &AutoReader{Deps: d, Times: times}
}

// Run checks every eligible session once and returns how many chats were
// queued for reading. Reads happen in the background until ctx is done.
func (a *AutoReader) Run(ctx context.Context) (int, error) {
	campaigns, err := a.Repos.Campaigns.ListActiveWithChildren(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}
	queued := 0
	for _, c := range campaigns {
		for _, cs := range c.Sessions {
			if !cs.AutoReadEnabled {
				continue
			}
			n, err := a.runSession(ctx, cs)
			if err != nil {
				a.Logger.Warn("auto read failed",
					zap.String("campaign_id", c.ID),
					zap.String("session_id", cs.SessionID),
					zap.Error(err))
				continue
			}
			queued += n
		}
	}
	return queued, nil
}

func (a *AutoReader) runSession(ctx context.Context, cs *model.CampaignSession) (int, error) {
	now := a.Clock.Now()
	interval := time.Duration(cs.AutoReadInterval) * time.Second
	if last, ok := a.Times.Get(cs.ID); ok && now.Sub(last) < interval {
		return 0, nil
	}

	status, err := a.Gateway.Status(ctx, cs.SessionID)
	if err != nil {
		return 0, err
	}
	if status != model.SessionStatusConnected {
		return 0, nil
	}
	a.Times.Set(cs.ID, now)

	chats, err := a.Gateway.ActiveChats(ctx, cs.SessionID)
	if err != nil {
		return 0, fmt.Errorf("list chats: %w", err)
	}
	for _, chat := range chats {
		delay := a.Rand.Duration(cs.AutoReadMinDelay, cs.AutoReadMaxDelay, time.Second)
		a.wg.Add(1)
		go a.markRead(ctx, cs.SessionID, chat, delay)
	}
	return len(chats), nil
}

func (a *AutoReader) markRead(ctx context.Context, sessionID, chat string, delay time.Duration) {
	defer a.wg.Done()
	select {
	case <-ctx.Done():
		return
	case <-a.Clock.After(delay):
	}
	if err := a.Gateway.MarkRead(ctx, sessionID, chat); err != nil {
		a.Logger.Debug("mark read failed",
			zap.String("session_id", sessionID),
			zap.String("chat_id", chat),
			zap.Error(err))
	}
}

// Wait blocks until every pending read finished or was cancelled.
func (a *AutoReader) Wait() {
	a.wg.Wait()
}
