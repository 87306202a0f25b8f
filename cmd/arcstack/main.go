package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"arcstack.dev/arcstack/internal/cli"
	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	tui.InitColor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := cli.NewRootCmd(version, commit, date)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, arcerrors.ErrUserAbort) {
			fmt.Fprintln(os.Stderr, tui.ColorYellow("Aborted."))
		} else {
			fmt.Fprintln(os.Stderr, tui.ColorRed("ERROR: ")+err.Error())
		}
		stop()
		os.Exit(1)
	}
}
