package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/domain"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/retry"
	"github.com/colonycore/colony/internal/routing"
	"github.com/colonycore/colony/internal/store"
	"github.com/colonycore/colony/internal/transport"
)

// buildLogger constructs the process logger from config.
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level))
}

// buildStore constructs the configured store.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Kind {
	case "redis":
		return store.NewRedisStore(ctx, cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// buildTransport constructs the configured transport. The file transport
// roots its session directory against the working directory.
func buildTransport(cfg *config.Config, log *logging.Logger) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case "file":
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return transport.NewFileTransport(cfg.Transport.ResolveDir(cwd),
			transport.WithPollInterval(cfg.Transport.PollInterval()),
			transport.WithFileLogger(log)), nil
	case "chan":
		return transport.NewChanTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

// buildEngine constructs the routing engine over the configured domains with
// the full strategy chain. Returns nil when no domains are declared.
func buildEngine(cfg *config.Config, log *logging.Logger) *routing.Engine {
	configs := cfg.DomainConfigs()
	if len(configs) == 0 {
		return nil
	}
	registry := domain.NewRegistry()
	for i := range configs {
		registry.Register(&configs[i])
	}
	return routing.NewEngine(registry, log,
		routing.KeywordStrategy{},
		routing.SkillStrategy{},
		routing.NewRoundRobinStrategy(),
	)
}

// buildPolicy constructs the shared retry policy from config.
func buildPolicy(cfg *config.Config) retry.Policy {
	if cfg.Retry.MaxRetries == 0 {
		return retry.NewNoRetry()
	}
	return retry.NewExponentialBackoff(
		retry.WithMaxRetries(cfg.Retry.MaxRetries),
		retry.WithBaseDelay(cfg.Retry.BaseDelay()),
		retry.WithMultiplier(cfg.Retry.Multiplier),
		retry.WithMaxDelay(cfg.Retry.MaxDelay()),
	)
}
