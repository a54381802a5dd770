// Launch-CTRL control plane server — bridges the cell-site simulator onto
// the incident bus, runs the supervisor and its agents, and serves the
// operator HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/drak0niii/Launch-CTRL/pkg/agents/correlation"
	"github.com/drak0niii/Launch-CTRL/pkg/agents/rca"
	"github.com/drak0niii/Launch-CTRL/pkg/agents/troubleshoot"
	"github.com/drak0niii/Launch-CTRL/pkg/api"
	"github.com/drak0niii/Launch-CTRL/pkg/bridge"
	"github.com/drak0niii/Launch-CTRL/pkg/bus"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/delta"
	"github.com/drak0niii/Launch-CTRL/pkg/logring"
	"github.com/drak0niii/Launch-CTRL/pkg/mailer"
	"github.com/drak0niii/Launch-CTRL/pkg/policy"
	"github.com/drak0niii/Launch-CTRL/pkg/supervisor"
	"github.com/drak0niii/Launch-CTRL/pkg/tower"
)

func main() {
	configDir := flag.String("config-dir", ".", "Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory; a missing file is fine.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file loaded", "path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	cfg := config.Load()
	slog.Info("Starting Launch-CTRL",
		"http_port", cfg.HTTPPort,
		"tower_base_url", cfg.Tower.BaseURL,
		"policy_file", cfg.PolicyFile)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Simulator client, delta emitter, and incident bus
	towerClient := tower.NewClient(cfg.Tower)
	emitter := delta.NewEmitter(cfg.Delta.BootstrapEmit)
	incidentBus := bus.New(cfg.Bus)

	// 2. Policy store with file persistence and hot-reload
	policyPath := cfg.PolicyFile
	if !filepath.IsAbs(policyPath) {
		policyPath = filepath.Join(*configDir, policyPath)
	}
	policyStore := policy.NewStore(policyPath)
	go func() {
		if err := policyStore.Watch(rootCtx); err != nil {
			slog.Warn("Policy file watcher stopped", "error", err)
		}
	}()

	// 3. Tower bridge (stream + poll ingest)
	towerBridge := bridge.New(cfg.Bridge, towerClient, emitter, incidentBus)
	towerBridge.Start(rootCtx)

	// 4. Agents
	correlationAgent := correlation.New(cfg.Correlation, policyStore, nil)
	rcaAgent := rca.New(cfg.RCA, towerClient)

	// 5. Supervisor; the troubleshooting agent reads the effective auto
	// mode from it at decision time, so wire the two together here.
	var sup *supervisor.Supervisor
	troubleshootAgent := troubleshoot.New(cfg.Troubleshoot, towerClient, func() bool {
		return sup.AutoEffective()
	})
	sup = supervisor.New(cfg.Supervisor, incidentBus, policyStore, towerClient,
		correlationAgent, troubleshootAgent, rcaAgent)

	// 6. Dispatch mail transport (dry-run without SMTP settings)
	mail := mailer.New(cfg.Mailer)
	if mail.DryRun() {
		slog.Info("Mailer in dry-run mode: dispatch emails are logged, not sent")
	}

	// 7. HTTP control surface
	agentLogs := map[string]*logring.Ring{
		"correlation":  correlationAgent.Log,
		"troubleshoot": troubleshootAgent.Log,
		"rca":          rcaAgent.Log,
	}
	server := api.New(sup, policyStore, incidentBus, towerBridge,
		towerClient, rcaAgent, mail, agentLogs)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Run(rootCtx, cfg.HTTPPort); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Launch-CTRL started; supervisor is idle until started via API")

	select {
	case <-rootCtx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("HTTP server error triggered shutdown", "error", err)
		stop()
	}

	// Graceful shutdown: stop orchestration first, then wait for the
	// bridge loops to drain.
	sup.Stop()
	towerBridge.Wait()
	slog.Info("Shutdown complete")
}
