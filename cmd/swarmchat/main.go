package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/dispatch"
	"github.com/mtzanidakis/swarmchat/internal/gateway"
	"github.com/mtzanidakis/swarmchat/internal/generator"
	"github.com/mtzanidakis/swarmchat/internal/llm"
	"github.com/mtzanidakis/swarmchat/internal/metrics"
	"github.com/mtzanidakis/swarmchat/internal/natsbus"
	"github.com/mtzanidakis/swarmchat/internal/queue"
	"github.com/mtzanidakis/swarmchat/internal/ratelimit"
	"github.com/mtzanidakis/swarmchat/internal/registry"
	"github.com/mtzanidakis/swarmchat/internal/scheduler"
	"github.com/mtzanidakis/swarmchat/internal/store"
	"github.com/mtzanidakis/swarmchat/internal/telegram"
	"github.com/mtzanidakis/swarmchat/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("swarmchat %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: swarmchat <command>

Commands:
  gateway    Start the chat gateway
  backup     Archive the chat database (-f <output.tar.zst>)
  restore    Restore the chat database (-f <backup.tar.zst> [-overwrite])
  version    Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting swarmchat gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer client.Close()

	rec := metrics.New()

	// Agent registry
	reg := registry.FromDefinitions(cfg.Agents)
	if err := syncAgents(db, reg); err != nil {
		return fmt.Errorf("sync agents: %w", err)
	}
	slog.Info("agents registered", "count", reg.Len())

	// Backends
	chain, errs := llm.BuildChain(cfg.LLM)
	for _, err := range errs {
		slog.Warn("llm backend disabled", "error", err)
	}
	if chain.Len() == 0 {
		slog.Warn("no usable llm backend, every reply will be an apology")
	}
	chain.WithObserver(rec)
	slog.Info("llm chain ready", "providers", chain.Names())

	coordinator, err := llm.NewProvider(cfg.LLM.Coordinator)
	if err != nil {
		slog.Warn("prompt refinement disabled", "error", err)
		coordinator = nil
	}

	gen := generator.New(chain, coordinator, generator.WithTokenCounter(llm.NewTokenCounter()))

	// Dispatch
	var qopts []queue.Option
	if cfg.Swarm.PriorityOrdering {
		qopts = append(qopts, queue.WithOrdering(queue.ByPriority))
	}
	q := queue.New(cfg.Swarm.MaxQueueSize, cfg.Swarm.QueueTimeout, qopts...)
	orch := dispatch.New(reg, q, gen, cfg.Swarm,
		dispatch.WithMetrics(rec),
		dispatch.WithInteractionInterval(cfg.Interaction.Interval),
	)

	limiter := ratelimit.New(cfg.RateLimit, nil)
	gw := gateway.New(orch, db, limiter, client, cfg.History.Limit, gateway.WithMetrics(rec))
	if err := gw.ServeRPC(ctx, client); err != nil {
		return fmt.Errorf("serve control rpc: %w", err)
	}

	// Scheduler
	sched, err := scheduler.New(orch, gw, cfg.Interaction)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	go sched.Start(ctx)

	// Telegram bot
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram, gw, bus)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		go func() {
			if err := bot.Start(ctx); err != nil {
				slog.Error("telegram bot error", "error", err)
			}
		}()
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// Web
	if cfg.Web.Enabled {
		srv := web.NewServer(gw, db, bus, rec.Handler(), cfg.Web, cfg.History.Limit, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port, "allowed_origins", cfg.Web.AllowedOrigins)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}

// syncAgents mirrors the roster into the store and drops agents from
// earlier runs.
func syncAgents(db *store.Store, reg *registry.Registry) error {
	agents := reg.List()
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		if err := db.SaveAgent(&store.Agent{
			ID:             a.ID,
			Name:           a.Name,
			Role:           a.Role,
			Specialization: a.Specialization,
			Personality:    a.Personality,
			DisplayName:    a.DisplayName,
			Color:          a.Color,
		}); err != nil {
			return err
		}
		ids = append(ids, a.ID)
	}
	return db.DeleteAgentsNotIn(ids)
}
