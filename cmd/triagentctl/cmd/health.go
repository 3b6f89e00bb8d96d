package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the Triagent service",
	Long:  `Check service readiness, including result store, broker, and rate-limiter backends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/health", nil)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		out, _ := readResponse(resp)

		if outputJSON {
			printOutput(out)
			return nil
		}
		if resp.StatusCode == 200 {
			fmt.Println("✓ Service is healthy")
		} else {
			fmt.Printf("✗ Service is unhealthy (HTTP %d)\n", resp.StatusCode)
		}
		if out != nil {
			fmt.Printf("  Database: %v  Broker: %v  RateLimiter: %v\n",
				out["database"], out["broker"], out["rate_limiter"])
			fmt.Printf("  Pending tasks: %v  Completed tasks: %v\n",
				out["pending_tasks"], out["completed_tasks"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
