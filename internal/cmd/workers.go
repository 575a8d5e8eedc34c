package cmd

import (
	"context"
	"fmt"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/coordinator"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/transport"
	"github.com/colonycore/colony/internal/worker"
)

// startEmbeddedWorkers starts n in-process echo workers on the given
// transport and registers them with the coordinator. Intended for local
// testing and batch execution over the chan transport.
func startEmbeddedWorkers(ctx context.Context, tr transport.Transport, coord *coordinator.Coordinator, n int, cfg *config.Config, log *logging.Logger) ([]*worker.Runner, error) {
	runners := make([]*worker.Runner, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("worker-%d", i)
		r := worker.New(id, tr,
			worker.WithPolicy(buildPolicy(cfg)),
			worker.WithLogger(log),
		)
		r.Register("echo", worker.Any(), echoHandler)

		if err := r.Start(ctx); err != nil {
			stopRunners(runners)
			return nil, fmt.Errorf("failed to start worker %s: %w", id, err)
		}
		if err := coord.RegisterWorker(id); err != nil {
			r.Stop()
			stopRunners(runners)
			return nil, fmt.Errorf("failed to register worker %s: %w", id, err)
		}
		runners = append(runners, r)
	}
	return runners, nil
}

func stopRunners(runners []*worker.Runner) {
	for _, r := range runners {
		r.Stop()
	}
}
