package cli

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

var scaleCmd = &cobra.Command{
	Use:   "scale <queue> <workers>",
	Short: "Resize the worker pool of a queue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			exitOnErr(fmt.Errorf("invalid worker count %q", args[1]))
		}
		exitOnErr(adminCall(http.MethodPost, fmt.Sprintf("/admin/pools/%s/scale?workers=%d", args[0], n)))
	},
}

func init() {
	rootCmd.AddCommand(scaleCmd)
}
