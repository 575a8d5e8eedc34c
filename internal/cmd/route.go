package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/colonycore/colony/internal/config"
	"github.com/colonycore/colony/internal/task"
)

var routeCmd = &cobra.Command{
	Use:   "route [payload]",
	Short: "Dry-run the routing engine against the configured domains",
	Long: `Run the routing strategy chain over the members declared in the
configuration and print which member would receive the task, without
dispatching anything. Strategies run in order: keyword rules first,
then skill matching, then round-robin.

Exits with code 2 when no member qualifies.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

var (
	routeDomain   string
	routePriority int
)

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVar(&routeDomain, "domain", "", "routing domain for the task (required)")
	routeCmd.Flags().IntVarP(&routePriority, "priority", "p", 0, "task priority")
	_ = routeCmd.MarkFlagRequired("domain")
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	engine := buildEngine(cfg, log)
	if engine == nil {
		return fmt.Errorf("no domains configured")
	}

	t := task.Task{
		ID:        "dry-run",
		From:      "cli",
		Payload:   args[0],
		Domain:    routeDomain,
		Priority:  routePriority,
		CreatedAt: time.Now(),
	}

	member, err := engine.FindBestMember(t, cfg.DomainMembers())
	if err != nil {
		return err
	}

	fmt.Printf("Routed to %s (domain %s, role %s, availability %.2f)\n",
		member.ID, member.Domain, member.Role, member.Availability)
	return nil
}
