package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"questsweep/internal/app"
	"questsweep/internal/sweep"
)

func newOnceCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sweep and print per-account results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runApp(ctx, *cfgPath, func(ctx context.Context, a *app.App) error {
				rep, err := a.Once(ctx)
				if perr := printReport(cmd.OutOrStdout(), rep); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func printReport(w io.Writer, rep sweep.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tEGRESS\tRESULT\tROLLED\tNEXT ROLL\tCREDITS\tERROR")
	for _, o := range rep.Outcomes {
		result := "ok"
		errText := ""
		if !o.Success {
			result = "failed"
			if o.Err != nil {
				errText = o.Err.Error()
			}
		}
		next := "-"
		if !o.NextEligible.IsZero() {
			next = o.NextEligible.Local().Format("2006-01-02 15:04")
		}
		egress := o.Egress
		if egress == "" {
			egress = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%g\t%s\n", o.Label, egress, result, o.Rolled, next, o.Credits, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	line := fmt.Sprintf("\n%d ok, %d failed; next sweep in %s", rep.Succeeded, rep.Failed, rep.Wait.Duration.Round(time.Minute))
	switch {
	case rep.Wait.Scheduled:
		line += " (schedule)"
	case rep.Wait.Account != "":
		line += " (set by " + rep.Wait.Account + ")"
	case rep.Wait.Defaulted:
		line += " (default)"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
