// Command anolisd is the runtime entrypoint: it loads the YAML config,
// wires the Orchestrator and every subsystem it owns, optionally loads a
// behavior tree, and runs until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FEASTorg/anolis-sub001/internal/config"
	"github.com/FEASTorg/anolis-sub001/internal/logging"
	"github.com/FEASTorg/anolis-sub001/internal/orchestrator"
	"github.com/FEASTorg/anolis-sub001/internal/router"
	"github.com/FEASTorg/anolis-sub001/internal/tracing"
)

func main() {
	var (
		configPath  string
		treePath    string
		metricsAddr string
		healthAddr  string
	)
	flag.StringVar(&configPath, "config", "anolis.yaml", "Path to the runtime config file")
	flag.StringVar(&treePath, "tree", "", "Path to a behavior tree JSON file to load (optional)")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose Prometheus metrics on address (e.g. :9090)")
	flag.StringVar(&healthAddr, "health", "", "Expose a status endpoint on address (e.g. :9091)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	tracing.Init("anolisd")

	// An empty logging.level leaves the level at its zero value, info.
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	baseLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	lg := logging.New(baseLogger)

	orch, err := orchestrator.New(cfg, lg)
	if err != nil {
		log.Fatalf("construct orchestrator: %v", err)
	}

	if treePath == "" && cfg.Automation.Enabled {
		treePath = cfg.Automation.BehaviorTree
	}
	if treePath != "" {
		raw, err := os.ReadFile(treePath)
		if err != nil {
			log.Fatalf("read tree: %v", err)
		}
		if err := orch.LoadTree(raw, cfg.Automation.TickRateHz); err != nil {
			log.Fatalf("load tree: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		log.Printf("config hot-reload disabled: %v", err)
	} else {
		watcher.OnChange(func(newCfg *config.Config) {
			policy := router.GatingBlock
			if newCfg.Automation.ManualGatingPolicy == string(router.GatingOverride) {
				policy = router.GatingOverride
			}
			orch.Router.SetGatingPolicy(policy)
			lg.InfoCtx(ctx, "config reloaded", "path", configPath)
		})
		watcherStop := make(chan struct{})
		go watcher.Run(watcherStop, func(err error) {
			lg.WarnCtx(ctx, "config reload failed", "error", err)
		})
		go func() {
			<-ctx.Done()
			close(watcherStop)
		}()
	}

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("start orchestrator: %v", err)
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(orch.Metrics.Registry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			lg.InfoCtx(ctx, "metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.WarnCtx(ctx, "metrics server error", "error", err)
			}
		}()
	}

	if healthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(orch.Status())
		})
		srv := &http.Server{Addr: healthAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			lg.InfoCtx(ctx, "status endpoint listening", "addr", healthAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.WarnCtx(ctx, "status server error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx := context.Background()
	orch.Shutdown(shutdownCtx)
	lg.InfoCtx(shutdownCtx, "runtime stopped")
}
