// internal/service/deps.go
package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/autopause"
	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/gateway"
	"github.com/unclebandit/warmup-engine/internal/health"
	"github.com/unclebandit/warmup-engine/internal/metrics"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/repository"
	"github.com/unclebandit/warmup-engine/internal/selection"
)

// Deps holds the collaborators shared by the planner, the dispatcher and the
// operator services.
type Deps struct {
	Repos    *repository.Repositories
	Gateway  gateway.Gateway
	Notifier *notify.Notifier
	Health   *health.Engine
	Pauses   *autopause.Controller
	Rand     *selection.Source
	Clock    clock.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Locks    *KeyedMutex
}

// NewDeps wires the health engine and the auto-pause controller from the
// base collaborators. m may be nil.
func NewDeps(repos *repository.Repositories, gw gateway.Gateway, n *notify.Notifier, rnd *selection.Source, c clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deps{
		Repos:    repos,
		Gateway:  gw,
		Notifier: n,
		Health:   health.NewEngine(repos, n, c, logger.Named("health")),
		Pauses:   autopause.New(repos.CampaignSessions, rnd, c, logger.Named("autopause")),
		Rand:     rnd,
		Clock:    c,
		Logger:   logger,
		Metrics:  m,
		Locks:    NewKeyedMutex(),
	}
}

// KeyedMutex serializes work per key, typically a campaign session id.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyedEntry{}}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
