// Package common provides shared helper functions for CLI commands.
package common

import (
	"github.com/spf13/cobra"

	"arcstack.dev/arcstack/internal/runtime"
)

// Run is a helper that provides a runtime context to a command's execution function
func Run(cmd *cobra.Command, fn func(ctx *runtime.Context) error) error {
	trace, _ := cmd.Flags().GetBool("trace")
	ctx, err := runtime.NewContext(cmd.Context(), runtime.Options{
		Trace: trace,
		Out:   cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = ctx.Close() }()
	return fn(ctx)
}

// CompleteBranches is a helper for cobra.ValidArgsFunction that returns the
// local branch names of the repository
func CompleteBranches(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	ctx, err := runtime.NewContext(cmd.Context(), runtime.Options{})
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer func() { _ = ctx.Close() }()
	heads, err := ctx.Git.HeadRefs(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names := make([]string, 0, len(heads))
	for _, h := range heads {
		names = append(names, h.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
