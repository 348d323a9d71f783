package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "questsweep",
		Short:        "Sweep quest accounts: social quests and the daily dice roll",
		Long:         "questsweep runs every configured account through its pending social quests and daily dice roll in bounded batches, then sleeps until the next roll is due.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (JSON or YAML); defaults to $QUESTSWEEP_CONFIG or ./config.yaml")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newOnceCmd(&cfgPath),
		newAccountsCmd(&cfgPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(version + "\n"))
			return err
		},
	}
}
