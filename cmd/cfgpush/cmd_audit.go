package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/cfgpush/pkg/audit"
	"github.com/newtron-network/cfgpush/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit trail",
	Long: `View the audit trail of past runs.

Every device of every run is recorded with:
  - Timestamp and run ID
  - User who ran it
  - Device and operation
  - Outcome and whether the configuration was saved

Events are read from ~/.cfgpush/audit.log, or from the Redis stream when
--audit-redis (or the audit-redis setting) is given.

Examples:
  cfgpush audit list --device 10.1.1.1
  cfgpush audit list --last 24h --failures
  cfgpush audit list --run 5f0c2d7e-1b9a-4c55-9c1e-0d3f2a6b8e41 --json`,
}

var (
	auditDevice   string
	auditUser     string
	auditRun      string
	auditLast     string
	auditLimit    int
	auditFailures bool
	auditJSON     bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			RunID:       auditRun,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		// Parse --last duration
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		src, err := auditSource()
		if err != nil {
			return err
		}
		defer src.Close()

		events, err := src.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		out := cmd.OutOrStdout()
		if auditJSON {
			return json.NewEncoder(out).Encode(events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events found")
			return nil
		}

		t := cli.NewTable(out, "TIMESTAMP", "USER", "DEVICE", "OPERATION", "OUTCOME", "SAVED", "RUN")
		for _, e := range events {
			outcome := e.Outcome
			if outcome == "" {
				outcome = "failed"
				if e.Success {
					outcome = "succeeded"
				}
			}
			saved := "no"
			if e.Saved {
				saved = "yes"
			}
			t.Row(
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.User,
				e.Device,
				e.Operation,
				cli.Status(outcome),
				saved,
				e.RunID,
			)
		}
		t.Flush()
		return nil
	},
}

// auditSource opens the backend queries are answered from.
func auditSource() (audit.Logger, error) {
	if addr := config.GetString("audit-redis"); addr != "" {
		return audit.NewRedisLogger(audit.RedisConfig{Addr: addr})
	}
	return audit.NewFileLogger(userSettings.GetAuditLog(), audit.DefaultRotation)
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditRun, "run", "", "Filter by run ID")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed devices")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Output as JSON")

	auditCmd.AddCommand(auditListCmd)
}
