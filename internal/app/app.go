// internal/app/app.go
package app

import (
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/clock"
	"github.com/unclebandit/warmup-engine/internal/config"
	"github.com/unclebandit/warmup-engine/internal/db"
	"github.com/unclebandit/warmup-engine/internal/gateway"
	"github.com/unclebandit/warmup-engine/internal/metrics"
	"github.com/unclebandit/warmup-engine/internal/notify"
	"github.com/unclebandit/warmup-engine/internal/queue"
	"github.com/unclebandit/warmup-engine/internal/repository"
	"github.com/unclebandit/warmup-engine/internal/selection"
	"github.com/unclebandit/warmup-engine/internal/service"
)

// App holds the process-wide dependencies shared by the server and the
// standalone worker.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Deps     *service.Deps
	Registry *prometheus.Registry

	closers []func() error
}

// New wires the store, gateway, notification queue and metrics selected by cfg.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := clock.Real{}
	rnd := selection.NewTimeSeeded()

	var repos *repository.Repositories
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		repos = repository.NewMemory(c)
	case "postgres", "":
		conn, err := db.Connect(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.DB = conn
		a.closers = append(a.closers, conn.Close)
		repos = repository.NewPostgres(conn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var gw gateway.Gateway
	switch cfg.Gateway.Driver {
	case "http":
		if cfg.Gateway.BaseURL == "" {
			a.Close()
			return nil, fmt.Errorf("gateway.base_url is required for the http gateway")
		}
		gw = gateway.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout)
	case "mock", "":
		logger.Warn("using mock gateway, nothing is delivered", zap.Float64("success_rate", cfg.Gateway.MockSuccessRate))
		gw = gateway.NewMock(cfg.Gateway.MockSuccessRate, rnd)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown gateway driver %q", cfg.Gateway.Driver)
	}

	q, err := a.queue()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Deps = service.NewDeps(repos, gw, notify.New(q, c, logger), rnd, c, logger, metrics.New(a.Registry))
	return a, nil
}

func (a *App) queue() (queue.Queue, error) {
	cfg := a.Config
	var q queue.Queue
	switch cfg.Notify.Driver {
	case "amqp":
		aq, err := queue.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, aq.Close)
		a.Logger.Info("publishing events to rabbitmq", zap.String("exchange", cfg.AMQP.Exchange))
		q = aq
	case "memory", "":
		mq := queue.NewInMemoryQueue(a.Logger, cfg.Notify.MaxRetries)
		a.closers = append(a.closers, func() error {
			mq.Wait()
			return nil
		})
		// publishing to a topic without subscribers is an error in memory
		if err := notify.SubscribeAll(mq, func(payload any) error {
			a.Logger.Debug("event", zap.Any("event", payload))
			return nil
		}); err != nil {
			return nil, err
		}
		q = mq
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Notify.Driver)
	}

	if cfg.Notify.WebhookURL != "" {
		fwd := notify.NewForwarder(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout)
		if err := notify.SubscribeAll(q, fwd.Handle); err != nil {
			return nil, err
		}
		a.Logger.Info("forwarding events to webhook", zap.String("url", cfg.Notify.WebhookURL))
	}
	return q, nil
}

// Worker builds the scheduler loop from the scheduler and autoread settings.
func (a *App) Worker() *service.Worker {
	s := a.Config.Scheduler
	var reader *service.AutoReader
	if a.Config.AutoRead.Enabled {
		reader = service.NewAutoReader(a.Deps, nil)
	}
	return service.NewWorker(
		a.Deps,
		service.NewDispatcher(a.Deps, s.BatchSize, s.MaxInFlight, s.SendTimeout),
		service.NewPlanner(a.Deps),
		reader,
		s.TickInterval,
	)
}

// MetricsHandler serves the registry in the prometheus text format.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
