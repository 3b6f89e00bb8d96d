package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// webhookCmd represents the webhook command
var webhookCmd = &cobra.Command{
	Use:   "webhook [source] [payload-json]",
	Short: "Deliver a webhook payload",
	Long: `Deliver a webhook payload to the intake endpoint as if the external
system had sent it.

Example:
  triagentctl webhook generic '{"action":"chat","message":"test delivery"}'
  triagentctl webhook pager_system '{"event":{"id":"evt-1","event_type":"incident.triggered","data":{"id":"PD-77","title":"API errors"}}}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]
		payload := args[1]

		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("invalid payload JSON")
		}

		resp, err := makeHTTPRequest("POST", "/webhooks/"+url.PathEscape(source), []byte(payload))
		if err != nil {
			return fmt.Errorf("failed to deliver webhook: %w", err)
		}
		out, err := readResponse(resp)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(out)
		} else {
			fmt.Printf("Webhook: %v\n", out["webhook_id"])
			fmt.Printf("  Status: %v\n", out["status"])
			if v, ok := out["task_id"]; ok {
				fmt.Printf("  Task: %v\n", v)
			}
			if dup, ok := out["duplicate"].(bool); ok && dup {
				fmt.Println("  Duplicate delivery: routed to the original task")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
}
