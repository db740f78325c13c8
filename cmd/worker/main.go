// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/app"
	"github.com/unclebandit/warmup-engine/internal/config"
)

var (
	cfgFile     string
	metricsAddr string
)

// Standalone scheduler. Run it instead of the embedded one by setting
// scheduler.embedded=false on the servers.
func main() {
	root := &cobra.Command{
		Use:           "warmup-worker",
		Short:         "Run the warmup scheduler without the operator API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address of the /metrics endpoint, empty to disable")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if metricsAddr != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", a.MetricsHandler())
		srv = &http.Server{Addr: metricsAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	w := a.Worker()
	w.Start(ctx)
	logger.Info("worker running", zap.Duration("tick_interval", w.Interval))

	<-ctx.Done()
	logger.Info("stopping worker")
	w.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}
