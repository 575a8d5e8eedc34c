package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/coordinator"
	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/queue"
	"github.com/colonycore/colony/internal/task"
	"github.com/colonycore/colony/internal/transport"
)

var execCmd = &cobra.Command{
	Use:   "exec [batch-file]",
	Short: "Execute a batch of interdependent tasks in waves",
	Long: `Read a JSON batch file and execute its tasks wave-parallel over
embedded workers: tasks whose dependencies have all produced results run
concurrently, later tasks wait for the waves before them.

The batch file is a JSON array of tasks:

  [
    {"id": "fetch", "payload": "fetch the dataset", "priority": 5},
    {"id": "clean", "payload": "clean the dataset", "depends_on": ["fetch"]},
    {"id": "report", "payload": "write the report", "depends_on": ["clean"]}
  ]

Exits with code 3 when the dependency graph has a cycle, and 2 when no
worker is available.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var execWorkerCount int

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().IntVar(&execWorkerCount, "workers", 4, "number of embedded workers")
}

// batchTask is one entry in the exec batch file.
type batchTask struct {
	ID        string   `json:"id"`
	Payload   string   `json:"payload"`
	Priority  int      `json:"priority"`
	Domain    string   `json:"domain,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	specs, err := loadBatch(args[0])
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("batch file %s contains no tasks", args[0])
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	if execWorkerCount <= 0 {
		return errors.Wrap(errors.ErrNoWorkerAvailable, "batch execution needs at least one worker")
	}

	tr := transport.NewChanTransport()
	defer tr.Close()

	q := queue.New(cfg.Queue.Name,
		queue.WithPolicy(buildPolicy(cfg)),
		queue.WithLogger(log),
	)
	coord := coordinator.New(tr,
		coordinator.WithID(cfg.Coordinator.ID),
		coordinator.WithQueue(q),
		coordinator.WithLogger(log),
		coordinator.WithWaitTimeout(cfg.Coordinator.WaitTimeout()),
	)
	if err := coord.Start(); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	defer coord.Stop()

	runners, err := startEmbeddedWorkers(ctx, tr, coord, execWorkerCount, cfg, log)
	if err != nil {
		return err
	}
	defer stopRunners(runners)

	start := time.Now()
	results, err := coord.ExecuteTasksInParallel(ctx, specs)
	printResults(results)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(results))
	}

	fmt.Printf("\n%d tasks completed in %s\n", len(results), time.Since(start).Round(time.Millisecond))
	return nil
}

// loadBatch parses the batch file into wave execution specs.
func loadBatch(path string) ([]coordinator.TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var batch []batchTask
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}

	specs := make([]coordinator.TaskSpec, len(batch))
	for i, b := range batch {
		t := task.Task{
			ID:        b.ID,
			From:      "cli",
			Payload:   b.Payload,
			Domain:    b.Domain,
			Priority:  b.Priority,
			CreatedAt: time.Now(),
		}
		specs[i] = coordinator.TaskSpec{Task: t, Dependencies: b.DependsOn}
	}
	return specs, nil
}

func printResults(results map[string]task.Result) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := results[id]
		if res.Success {
			fmt.Printf("ok    %s  %s\n", id, res.Output)
		} else {
			fmt.Printf("FAIL  %s  %s\n", id, res.Error)
		}
	}
}
