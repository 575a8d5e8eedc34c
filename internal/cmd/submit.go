package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/colonycore/colony/internal/config"
)

var submitCmd = &cobra.Command{
	Use:   "submit [payload]",
	Short: "Submit a task to a running coordinator",
	Long: `Submit a task to the coordinator's HTTP API. Prints the assigned
task id on success. Use --dep to declare dependencies on previously
submitted task ids; the task stays pending until they complete.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var (
	submitAddr     string
	submitPriority int
	submitDomain   string
	submitDeps     []string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitAddr, "addr", "", "coordinator API address (default from config)")
	submitCmd.Flags().IntVarP(&submitPriority, "priority", "p", 0, "task priority, higher dispatches first")
	submitCmd.Flags().StringVar(&submitDomain, "domain", "", "routing domain for the task")
	submitCmd.Flags().StringSliceVar(&submitDeps, "dep", nil, "task id this task depends on (repeatable)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"payload":      args[0],
		"priority":     submitPriority,
		"domain":       submitDomain,
		"from":         "cli",
		"dependencies": submitDeps,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(apiURL(cfg, submitAddr, "/api/v1/tasks"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}

	var created struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Submitted task %s (%s)\n", created.TaskID, created.Status)
	return nil
}

// apiURL resolves the coordinator API base address, preferring the --addr
// flag over the configured HTTP address.
func apiURL(cfg *config.Config, addr, path string) string {
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	if addr != "" && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}

// apiError turns a non-2xx API response into an error carrying the server's
// message when one is present.
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("coordinator returned %s: %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("coordinator returned %s", resp.Status)
}
