package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/colonycore/colony/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task or worker status",
	Long: `Query a running coordinator. With a task id, show that task's state
and result; without one, list the registered workers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusAddr string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "coordinator API address (default from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return showTask(cfg, args[0])
	}
	return showWorkers(cfg)
}

func showTask(cfg *config.Config, taskID string) error {
	resp, err := http.Get(apiURL(cfg, statusAddr, "/api/v1/tasks/"+url.PathEscape(taskID)))
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("task %s not found", taskID)
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var view struct {
		Task struct {
			ID       string `json:"id"`
			Payload  string `json:"payload"`
			Priority int    `json:"priority"`
			Domain   string `json:"domain"`
		} `json:"task"`
		Status       string   `json:"status"`
		RetryCount   int      `json:"retry_count"`
		Dependencies []string `json:"dependencies"`
		Result       *struct {
			Success bool   `json:"success"`
			Output  string `json:"output"`
			Error   string `json:"error"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Task: %s\n", view.Task.ID)
	fmt.Printf("Status: %s\n", view.Status)
	fmt.Printf("Priority: %d\n", view.Task.Priority)
	if view.Task.Domain != "" {
		fmt.Printf("Domain: %s\n", view.Task.Domain)
	}
	if view.RetryCount > 0 {
		fmt.Printf("Retries: %d\n", view.RetryCount)
	}
	if len(view.Dependencies) > 0 {
		fmt.Printf("Waiting on: %v\n", view.Dependencies)
	}
	fmt.Printf("Payload: %s\n", view.Task.Payload)
	if view.Result != nil {
		if view.Result.Success {
			fmt.Printf("Output: %s\n", view.Result.Output)
		} else {
			fmt.Printf("Error: %s\n", view.Result.Error)
		}
	}
	return nil
}

func showWorkers(cfg *config.Config) error {
	resp, err := http.Get(apiURL(cfg, statusAddr, "/api/v1/workers"))
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var view struct {
		Workers []struct {
			ID          string  `json:"id"`
			State       string  `json:"state"`
			SuccessRate float64 `json:"success_rate"`
			TaskCount   int     `json:"task_count"`
			CurrentTask string  `json:"current_task"`
		} `json:"workers"`
		Idle int `json:"idle"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(view.Workers) == 0 {
		fmt.Println("No workers registered")
		return nil
	}

	fmt.Printf("Workers: %d (%d idle)\n\n", len(view.Workers), view.Idle)
	for _, w := range view.Workers {
		fmt.Printf("%s  %s  tasks=%d  success=%.0f%%\n", w.ID, w.State, w.TaskCount, w.SuccessRate*100)
		if w.CurrentTask != "" {
			fmt.Printf("    working on %s\n", w.CurrentTask)
		}
	}
	return nil
}
