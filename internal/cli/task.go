package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/FerryClaw/FerryClaw/internal/config"
	"github.com/FerryClaw/FerryClaw/internal/store"
)

var (
	taskCmd = &cobra.Command{
		Use:   "task",
		Short: "Inspect scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	taskListCmd = &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE:  runTaskList,
	}

	taskRunsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Show recent executions of a task",
		RunE:  runTaskRuns,
	}
)

func init() {
	taskListCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	taskRunsCmd.Flags().Int64("task", 0, "Task ID")
	taskRunsCmd.Flags().Int("limit", 20, "Maximum runs to show")
	taskRunsCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskRunsCmd)
}

func openTaskStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.Open(filepath.Join(cfg.Paths.DataDir, "ferryclaw.db"))
}

func runTaskList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	st, err := openTaskStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListScheduledTasks()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scheduled tasks.")
		return nil
	}
	w := cmd.OutOrStdout()
	for _, t := range tasks {
		next := "retired"
		if t.NextRun != nil {
			next = t.NextRun.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "#%d [%s %s] chat=%d next=%s %s\n", t.ID, t.ScheduleType, t.ScheduleValue, t.ChatID, next, t.Prompt)
	}
	return nil
}

func runTaskRuns(cmd *cobra.Command, args []string) error {
	taskID, _ := cmd.Flags().GetInt64("task")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	if taskID == 0 {
		return fmt.Errorf("--task is required")
	}

	st, err := openTaskStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListTaskRuns(taskID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	if len(runs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded for task #%d.\n", taskID)
		return nil
	}
	w := cmd.OutOrStdout()
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%s %-6s %s\n", r.StartedAt.UTC().Format(time.RFC3339), status, r.ResultSummary)
	}
	return nil
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
