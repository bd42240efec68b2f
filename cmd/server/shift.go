package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/oee-tracker/shift"
)

var shiftAt string

var shiftCmd = &cobra.Command{
	Use:   "shift",
	Short: "Print the shift window of an instant (default now)",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := time.Now()
		if shiftAt != "" {
			var err error
			if t, err = time.Parse(time.RFC3339, shiftAt); err != nil {
				return fmt.Errorf("--at: %w", err)
			}
		}

		w := shift.Resolve(t)
		out := cmd.OutOrStdout()
		if !w.Active() {
			fmt.Fprintf(out, "no active shift at %s plant time\n", w.LocalTime)
			return nil
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", w.Shift, w.Date, w.Hour.Label())
		return nil
	},
}

func init() {
	shiftCmd.Flags().StringVar(&shiftAt, "at", "", "instant to resolve, RFC3339")
}
