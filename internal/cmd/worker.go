package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/task"
	"github.com/colonycore/colony/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker process commands",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a worker process",
	Long: `Start a worker that receives tasks over the configured transport,
executes them, and reports results back to the coordinator.

The worker id must match a member declared in the coordinator's domain
configuration, or a worker the coordinator registered by other means.
With --domain the worker only claims tasks tagged with that domain;
everything else is declined with a no-handler error.`,
	RunE: runWorker,
}

var (
	workerID     string
	workerDomain string
)

func init() {
	workerCmd.AddCommand(workerRunCmd)
	rootCmd.AddCommand(workerCmd)

	workerRunCmd.Flags().StringVar(&workerID, "id", "", "worker id (required)")
	workerRunCmd.Flags().StringVar(&workerDomain, "domain", "", "only handle tasks tagged with this domain")
	_ = workerRunCmd.MarkFlagRequired("id")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	tr, err := buildTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	defer tr.Close()

	r := worker.New(workerID, tr,
		worker.WithPolicy(buildPolicy(cfg)),
		worker.WithLogger(log),
	)
	if workerDomain != "" {
		r.Register("echo", worker.DomainIs(workerDomain), echoHandler)
	} else {
		r.Register("echo", worker.Any(), echoHandler)
	}

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer r.Stop()

	fmt.Printf("Worker %s running, press Ctrl+C to stop\n", workerID)
	<-ctx.Done()
	return nil
}

// echoHandler is the default task handler: it acknowledges the task by
// returning its payload.
func echoHandler(_ context.Context, t task.Task) (string, error) {
	return t.Payload, nil
}
