package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// taskCmd represents the task command
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit and inspect tasks",
	Long:  `Submit LLM tasks, poll their results, and request cancellation.`,
}

// submitCmd represents the task submit command
var submitCmd = &cobra.Command{
	Use:   "submit [kind] [payload-json]",
	Short: "Submit a task",
	Long: `Submit a task of the given kind with a JSON payload.

Example:
  triagentctl task submit summarize '{"incident":{"key":"INC-42","summary":"db failover"}}'
  triagentctl task submit chat '{"message":"why is latency up?"}' --sync`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		payload := args[1]

		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("invalid payload JSON")
		}

		sync, _ := cmd.Flags().GetBool("sync")
		path := "/tasks/" + url.PathEscape(kind)
		if sync {
			path += "?async=false"
		}

		resp, err := makeHTTPRequest("POST", path, []byte(payload))
		if err != nil {
			return fmt.Errorf("failed to submit task: %w", err)
		}
		out, err := readResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Printf("Task: %v\n", out["task_id"])
			fmt.Printf("  Status: %v\n", out["status"])
			if result, ok := out["result"]; ok {
				pretty, _ := json.MarshalIndent(result, "  ", "  ")
				fmt.Printf("  Result: %s\n", pretty)
			}
		}
		return nil
	},
}

// getCmd represents the task get command
var getCmd = &cobra.Command{
	Use:   "get [task-id]",
	Short: "Get a task's status and result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/tasks/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return fmt.Errorf("failed to get task: %w", err)
		}
		out, err := readResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Printf("Task: %v\n", out["task_id"])
			fmt.Printf("  Kind: %v\n", out["kind"])
			fmt.Printf("  Status: %v\n", out["status"])
			fmt.Printf("  Created: %v\n", out["created_at"])
			if v, ok := out["completed_at"]; ok {
				fmt.Printf("  Completed: %v\n", v)
			}
			if v, ok := out["error"]; ok {
				fmt.Printf("  Error: %v\n", v)
			}
			if result, ok := out["result"]; ok {
				pretty, _ := json.MarshalIndent(result, "  ", "  ")
				fmt.Printf("  Result: %s\n", pretty)
			}
		}
		return nil
	},
}

// cancelCmd represents the task cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Request cancellation of a task",
	Long: `Request cooperative cancellation of a pending or processing task.
Cancellation is best-effort: a task already past its last checkpoint may
still complete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("DELETE", "/tasks/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		out, err := readResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Printf("Task: %v\n", out["task_id"])
			fmt.Printf("  Status: %v\n", out["status"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(submitCmd)
	taskCmd.AddCommand(getCmd)
	taskCmd.AddCommand(cancelCmd)

	submitCmd.Flags().Bool("sync", false, "wait for the terminal result instead of returning immediately")
}
