package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arcstack",
		Short: "Land stacks of dependent revisions through the submit queue",
		Long: `arcstack lands a stack of dependent code-review revisions atomically.

It checks that every revision sits on the latest diff of its parent, offers
to repair the stack when it does not, and hands the whole stack to the
submit queue in one request.`,
		Version:       version + " (" + commit + ", " + date + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("trace", false, "Print every git command and review-service call.")

	rootCmd.AddCommand(newLandCmd())
	rootCmd.AddCommand(newCascadeCmd())
	rootCmd.AddCommand(newFlowCmd())

	return rootCmd
}
