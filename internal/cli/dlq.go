package cli

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	forceRequeue bool
	listCategory string
	listEligible bool
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and triage the dead letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list <queue>",
	Short: "List dead letter entries for a queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		q := url.Values{}
		if listCategory != "" {
			q.Set("category", listCategory)
		}
		if listEligible {
			q.Set("eligible", "true")
		}
		path := "/admin/dlq/" + args[0]
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		exitOnErr(adminCall(http.MethodGet, path))
	},
}

var dlqEligibleCmd = &cobra.Command{
	Use:   "eligible <queue>",
	Short: "List entries that can be requeued right now",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodGet, "/admin/dlq/"+args[0]+"/eligible"))
	},
}

var dlqRequeueEligibleCmd = &cobra.Command{
	Use:   "requeue-eligible <queue>",
	Short: "Requeue every currently eligible entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodPost, "/admin/dlq/"+args[0]+"/requeue-eligible"))
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats <queue>",
	Short: "Show dead letter statistics for a queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodGet, "/admin/dlq/"+args[0]+"/stats"))
	},
}

var dlqRequeueCmd = &cobra.Command{
	Use:   "requeue <queue> <job-id>",
	Short: "Requeue a dead letter entry for another attempt",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path := fmt.Sprintf("/admin/dlq/%s/%s/requeue", args[0], args[1])
		if forceRequeue {
			path += "?force=true"
		}
		exitOnErr(adminCall(http.MethodPost, path))
	},
}

var dlqDiscardCmd = &cobra.Command{
	Use:   "discard <queue> <job-id>",
	Short: "Permanently discard a dead letter entry",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodDelete, fmt.Sprintf("/admin/dlq/%s/%s", args[0], args[1])))
	},
}

func init() {
	dlqRequeueCmd.Flags().BoolVar(&forceRequeue, "force", false, "bypass eligibility and cooldown checks")
	dlqListCmd.Flags().StringVar(&listCategory, "category", "", "only entries with this error category")
	dlqListCmd.Flags().BoolVar(&listEligible, "eligible", false, "only entries flagged retry eligible")
	dlqCmd.AddCommand(dlqListCmd, dlqStatsCmd, dlqEligibleCmd, dlqRequeueCmd, dlqRequeueEligibleCmd, dlqDiscardCmd)
	rootCmd.AddCommand(dlqCmd)
}
