package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the version of gosocks, set at build time.
var Version = "unset"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of gosocks",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gosocks version %s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
