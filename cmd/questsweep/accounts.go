package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"questsweep/internal/app"
	"questsweep/internal/client"
)

func newAccountsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List loaded accounts and their proxies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), *cfgPath, func(_ context.Context, a *app.App) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tACCOUNT\tPROXY")
				for _, acc := range a.Accounts() {
					proxy := "direct"
					if acc.Proxy != "" {
						proxy = client.RedactProxy(acc.Proxy)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", acc.Index, acc.Label(), proxy)
				}
				return tw.Flush()
			})
		},
	}
}
