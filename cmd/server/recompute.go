package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

var (
	recomputeShift string
	recomputeDate  string
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild one shift's OEE record from stored facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := shift.Parse(recomputeShift)
		if err != nil {
			return fmt.Errorf("--shift: %w", err)
		}
		d, err := shift.ParseDate(recomputeDate)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}

		st, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		q := production.NewQualityService(st, production.NewCalculator(cfg.OEE.Calculator()), nil)
		rec, err := q.Recompute(cmd.Context(), production.ShiftKey{Shift: s, Date: d})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s  availability %s  performance %s  quality %s  oee %s\n",
			rec.Shift, rec.Date,
			production.Percent(rec.Availability),
			production.Percent(rec.Performance),
			production.Percent(rec.Quality),
			production.Percent(rec.OEE))
		return nil
	},
}

func init() {
	recomputeCmd.Flags().StringVar(&recomputeShift, "shift", "", "shift-1 or shift-2")
	recomputeCmd.Flags().StringVar(&recomputeDate, "date", "", "shift date, YYYY-MM-DD")
	_ = recomputeCmd.MarkFlagRequired("shift")
	_ = recomputeCmd.MarkFlagRequired("date")
}
