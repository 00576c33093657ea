package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"eatauthentically/internal/lock"
	"eatauthentically/internal/outreach"

	"github.com/spf13/cobra"
)

var outreachCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Producer claim outreach campaign",
}

var outreachRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one outreach pass now, as the daily cron would",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		var rep *outreach.Report
		ran, err := lock.Do(cmd.Context(), a.locker, lock.OutreachRun, 30*time.Minute, func(ctx context.Context) error {
			var err error
			rep, err = a.scheduler.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if !ran {
			return fmt.Errorf("outreach run already in progress")
		}
		return printJSON(rep)
	},
}

var outreachPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List the producers the next run would email",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		followUps, fresh, err := a.scheduler.Preview(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"followUps":    followUps,
			"newProducers": fresh,
		})
	},
}

func init() {
	outreachCmd.AddCommand(outreachRunCmd, outreachPreviewCmd)
	rootCmd.AddCommand(outreachCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
