// simulatord is the protocol simulator service's entrypoint: it loads
// configuration from the environment, restores persisted simulators, and
// serves the admin HTTP API until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/protosim/simulatord/pkg/adminapi"
	"github.com/protosim/simulatord/pkg/config"
	"github.com/protosim/simulatord/pkg/logging"
	"github.com/protosim/simulatord/pkg/mqttsim"
	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/simulator"
	"github.com/protosim/simulatord/pkg/template"
)

// shutdownTimeout bounds how long the admin HTTP server is given to drain
// in-flight requests on SIGINT/SIGTERM.
const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "simulatord: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	log := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Format:  logging.ParseFormat(cfg.LogFormat),
		LokiURL: cfg.LokiURL,
	})

	store := persist.New(cfg.DataDir, log)
	templates := template.New(store)

	simMgr := simulator.New(store, log)
	mqttMgr := mqttsim.New(store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	simMgr.Load(ctx)
	mqttMgr.Load()

	api := adminapi.New(simMgr, mqttMgr, templates, log)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin API listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("admin API: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin API shutdown error", "error", err)
	}

	return nil
}
