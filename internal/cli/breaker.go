package cli

import (
	"net/http"

	"github.com/spf13/cobra"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect and control circuit breakers",
}

var breakerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all circuit breakers and their state",
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodGet, "/admin/breakers"))
	},
}

var breakerResetCmd = &cobra.Command{
	Use:   "reset <service>",
	Short: "Reset a circuit breaker to closed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodPost, "/admin/breakers/"+args[0]+"/reset"))
	},
}

var breakerOpenCmd = &cobra.Command{
	Use:   "open <service>",
	Short: "Force a circuit breaker open",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnErr(adminCall(http.MethodPost, "/admin/breakers/"+args[0]+"/open"))
	},
}

func init() {
	breakerCmd.AddCommand(breakerListCmd, breakerResetCmd, breakerOpenCmd)
	rootCmd.AddCommand(breakerCmd)
}
