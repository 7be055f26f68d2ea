package cli

import (
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depths, pools and system health of a running instance",
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodGet, "/admin/status"))
	},
}

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Show registered workers and their health",
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodGet, "/admin/workers"))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workersCmd)
}
