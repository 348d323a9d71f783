package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"questsweep/internal/app"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sweep forever, sleeping between sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runApp(ctx, *cfgPath, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}

func runApp(ctx context.Context, cfgPath string, fn func(context.Context, *app.App) error) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
