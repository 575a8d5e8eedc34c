package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/coordinator"
	"github.com/colonycore/colony/internal/httpapi"
	"github.com/colonycore/colony/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator and HTTP API",
	Long: `Start the coordinator process: it owns the task queue and worker
registry, listens for worker results on the configured transport, and
serves the HTTP API for task submission and status.

Domain members declared in the configuration are registered as workers
at startup. With the chan transport, --workers also starts that many
embedded echo workers in-process, which is useful for local testing.`,
	RunE: runServe,
}

var serveWorkerCount int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&serveWorkerCount, "workers", 0, "number of embedded workers to start (chan transport only)")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	tr, err := buildTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	defer tr.Close()

	q := queue.New(cfg.Queue.Name,
		queue.WithPolicy(buildPolicy(cfg)),
		queue.WithLogger(log),
		queue.WithStore(st, cfg.Queue.ResultTTL()),
	)

	opts := []coordinator.Option{
		coordinator.WithID(cfg.Coordinator.ID),
		coordinator.WithQueue(q),
		coordinator.WithLogger(log),
		coordinator.WithStore(st, cfg.Coordinator.HeartbeatTTL()),
		coordinator.WithWaitTimeout(cfg.Coordinator.WaitTimeout()),
	}
	if engine := buildEngine(cfg, log); engine != nil {
		opts = append(opts, coordinator.WithRouting(engine, cfg.DomainMembers()))
	}
	coord := coordinator.New(tr, opts...)
	if err := coord.Start(); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	defer coord.Stop()

	for _, m := range cfg.DomainMembers() {
		if m.Availability <= 0 {
			continue
		}
		if err := coord.RegisterWorker(m.ID); err != nil {
			return fmt.Errorf("failed to register worker %s: %w", m.ID, err)
		}
	}

	if serveWorkerCount > 0 {
		if cfg.Transport.Kind != "chan" {
			return fmt.Errorf("embedded workers require the chan transport, have %q", cfg.Transport.Kind)
		}
		runners, err := startEmbeddedWorkers(ctx, tr, coord, serveWorkerCount, cfg, log)
		if err != nil {
			return err
		}
		defer stopRunners(runners)
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.New(q, coord, log).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http api listening", "addr", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("Coordinator %s listening on %s\n", cfg.Coordinator.ID, cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
