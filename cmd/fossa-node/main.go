// Command fossa-node runs the governor daemon: it loads configuration,
// wires the whitelist and isolated processor, attaches any configured
// broker sidecars, and serves the HTTP adapter until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/aye-aye-dev/fossa-node/pkg/audit/postgres"
	"github.com/aye-aye-dev/fossa-node/pkg/broker"
	"github.com/aye-aye-dev/fossa-node/pkg/config"
	"github.com/aye-aye-dev/fossa-node/pkg/governor"
	"github.com/aye-aye-dev/fossa-node/pkg/history"
	"github.com/aye-aye-dev/fossa-node/pkg/httpapi"
	"github.com/aye-aye-dev/fossa-node/pkg/identity"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/metrics"
	"github.com/aye-aye-dev/fossa-node/pkg/pool"
	"github.com/aye-aye-dev/fossa-node/pkg/processor"
	"github.com/aye-aye-dev/fossa-node/pkg/processor/models"
)

func main() {
	configFile := flag.String("config", "", "Configuration file path")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fossa-node: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logLevelConfig(cfg))

	node, err := identity.New(cfg.Performance.MaxConcurrentTasks)
	if err != nil {
		logger.Errorf("allocating node identity: %v", err)
		os.Exit(1)
	}
	logger.Infof("starting node_ident=%s max_concurrent_tasks=%d", node.NodeID, node.MaxConcurrentTasks)

	registry := registerModels()

	gov := governor.New(governor.Config{
		MaxConcurrentTasks:    node.MaxConcurrentTasks,
		PreviousTasksCapacity: cfg.Performance.PreviousTasksCapacity,
		DeadmanTimeout:        time.Duration(cfg.Performance.DeadmanTimeoutMS) * time.Millisecond,
	}, node.NodeID, buildProcessor(cfg, registry, logger), logger)

	for _, class := range cfg.AcceptedModelClasses {
		if err := gov.RegisterClass(class); err != nil {
			logger.Errorf("registering class %q: %v", class, err)
			os.Exit(1)
		}
	}

	m := metrics.New()
	gov.AttachMetrics(m)

	if cfg.Audit.ConnectionString != "" {
		sink, err := buildAuditSink(cfg)
		if err != nil {
			logger.Errorf("building audit sink: %v", err)
			os.Exit(1)
		}
		gov.AttachAudit(sink)
		defer sink.Close()
	}

	for _, sc := range cfg.MessageBrokerManagers {
		sidecar := broker.NewSidecar(broker.SidecarConfig{Name: sc.Name, BrokerURL: sc.BrokerURL, TaskQueue: sc.TaskQueue}, logger)
		if err := gov.AttachSidecar(sidecar); err != nil {
			logger.Errorf("attaching sidecar %q: %v", sc.Name, err)
			os.Exit(1)
		}
	}

	hist, err := history.New()
	if err != nil {
		logger.Errorf("building search index: %v", err)
		os.Exit(1)
	}
	defer hist.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gov.Start(ctx); err != nil {
		logger.Errorf("starting governor: %v", err)
		os.Exit(1)
	}

	srv := httpapi.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), gov, hist, m, logger)

	watcher := config.NewWatcher(*configFile, cfg, logger, func(reloaded *config.Config) {
		logger.Infof("config reloaded: debug=%v log_level=%s", reloaded.Debug, reloaded.Logging.Level)
	})
	go func() {
		if *configFile != "" {
			if err := watcher.Run(ctx); err != nil {
				logger.Errorf("config watcher stopped: %v", err)
			}
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Errorf("http server stopped: %v", err)
		}
	}()
	logger.Infof("http adapter listening on :%d", cfg.HTTPPort)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	if err := gov.Stop(); err != nil {
		logger.Errorf("governor shutdown: %v", err)
	}
}

func logLevelConfig(cfg *config.Config) *logging.Config {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	format := logging.TextFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	output := io.Writer(os.Stdout)
	if cfg.Logging.Output == "file" || cfg.Logging.Output == "both" {
		if f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			if cfg.Logging.Output == "both" {
				output = io.MultiWriter(os.Stdout, f)
			} else {
				output = f
			}
		}
	}
	return &logging.Config{
		Level:            level,
		Format:           format,
		Output:           output,
		EnableSanitizing: true,
	}
}

// registerModels links in every Model this node knows how to run.
// Production nodes would extend this with domain-specific models;
// these are the spec's own testable fixtures (scenarios 1, 3 and 4).
func registerModels() *processor.Registry {
	registry := processor.NewRegistry()
	registry.Register("NothingEtl", models.NewNothingEtl)
	registry.Register("PartialFailure", models.NewPartialFailure)
	registry.Register("SecondTimeLucky", models.NewSecondTimeLucky)
	return registry
}

func buildProcessor(cfg *config.Config, registry *processor.Registry, logger *logging.Logger) governor.Processor {
	switch cfg.IsolatedProcessor.Kind {
	case config.ProcessorBrokerBacked:
		client := broker.NewClient(cfg.IsolatedProcessor.BrokerURL, logger)
		poolCfg := pool.DefaultConfig("fossa.subtasks")
		poolCfg.Retries = cfg.Performance.SubtaskRetries
		poolCfg.InactivityTimeout = time.Duration(cfg.Performance.InactivityTimeoutMS) * time.Millisecond
		return processor.NewBrokerBacked(registry, nil, client, poolCfg, logger)
	case config.ProcessorSubprocess:
		return processor.NewSubprocess(cfg.IsolatedProcessor.ChildBinary, logger)
	default:
		return processor.NewLocal(registry, nil, logger)
	}
}

func buildAuditSink(cfg *config.Config) (*postgres.Sink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return postgres.Open(ctx, cfg.Audit.ConnectionString, cfg.Audit.MigrationsPath)
}
