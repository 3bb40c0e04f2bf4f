package app

import (
	"context"
	"fmt"
	"time"

	"Hephaestus/internal/agents"
	"Hephaestus/internal/bridge"
	"Hephaestus/internal/config"
	"Hephaestus/internal/events"
	"Hephaestus/internal/orchestrator"
	"Hephaestus/internal/pipeline"
	"Hephaestus/internal/toolchain"
	"Hephaestus/pkg/circuitbreaker"
	"Hephaestus/pkg/logger"
)

// Core bundles the orchestration engine shared by every front end (REST
// service, MCP service). Construction is explicit dependency injection: the
// caller builds one Core at process start and passes it around; nothing is
// reachable through package-level state.
type Core struct {
	Orchestrator *orchestrator.Orchestrator
	Bridge       *bridge.ToolchainBridge

	shutdownTimeout time.Duration
}

// BuildCore assembles the store, agents, toolchain bridge, pipeline graph and
// orchestrator from configuration. extraPublishers lets a front end attach
// its own event sinks (e.g. the websocket fan-out).
func BuildCore(ctx context.Context, cfg *config.AppConfig, log *logger.Logger, extraPublishers ...events.TaskEventPublisher) (*Core, error) {
	retention, err := config.Duration("orchestrator.retentionTTL", cfg.Orchestrator.RetentionTTL)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := config.Duration("bridge.cacheTTL", cfg.Bridge.CacheTTL)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := config.Duration("bridge.shutdownTimeout", cfg.Bridge.ShutdownTimeout)
	if err != nil {
		return nil, err
	}
	awaitTimeout, err := config.Duration("bridge.awaitTimeout", cfg.Bridge.AwaitTimeout)
	if err != nil {
		return nil, err
	}

	cache, err := buildCache(ctx, cfg, cacheTTL)
	if err != nil {
		return nil, err
	}

	bridgeOpts := []bridge.Option{
		bridge.WithCache(cache),
		bridge.WithLogger(log),
	}
	if cb := cfg.Bridge.CircuitBreaker; cb.Enabled {
		timeout, err := config.Duration("bridge.circuitBreaker.timeout", cb.Timeout)
		if err != nil {
			return nil, err
		}
		bridgeOpts = append(bridgeOpts,
			bridge.WithCircuitBreaker(circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, timeout)))
	}

	toolchainBridge := bridge.NewToolchainBridge(pipeline.BridgeName, bridgeOpts...)
	toolchain.Register(toolchainBridge)

	registry := agents.NewLocalRegistry()
	registry.Register(agents.LevelPlanner{})
	registry.Register(agents.DocWriter{})

	store := orchestrator.NewTaskStateStore(retention, log)

	orchOpts := []orchestrator.Option{
		orchestrator.WithBridge(pipeline.BridgeName, toolchainBridge),
		orchestrator.WithAwaitTimeout(awaitTimeout),
	}
	if cfg.Events.KafkaEnabled {
		if len(cfg.Databases.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("events.kafkaEnabled is set but no Kafka brokers are configured")
		}
		orchOpts = append(orchOpts, orchestrator.WithEventPublisher(
			events.NewKafkaPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.Topic, log)))
	}
	for _, p := range extraPublishers {
		orchOpts = append(orchOpts, orchestrator.WithEventPublisher(p))
	}

	orch := orchestrator.New(store, registry, log, orchOpts...)

	graph, err := pipeline.NewLevelGenerationGraph(orch, registry, log)
	if err != nil {
		return nil, err
	}
	orch.UseGraph(graph)

	return &Core{
		Orchestrator:    orch,
		Bridge:          toolchainBridge,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Shutdown drains the bridge and stops the orchestrator.
func (c *Core) Shutdown() {
	c.Orchestrator.Shutdown(c.shutdownTimeout)
}

// buildCache selects the configured result cache backend.
func buildCache(ctx context.Context, cfg *config.AppConfig, ttl time.Duration) (bridge.Cache, error) {
	switch cfg.Bridge.CacheBackend {
	case "", "memory":
		return bridge.NewMemoryCache(ttl), nil
	case "redis":
		client, err := bridge.NewRedisClient(ctx, &cfg.Databases.Redis)
		if err != nil {
			return nil, err
		}
		return bridge.NewRedisCache(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Bridge.CacheBackend)
	}
}
