package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/rankwatch/internal/calendar"
)

func newCheckDayCommand(state *cliState) *cobra.Command {
	var date string
	var exitCode bool
	cmd := &cobra.Command{
		Use:   "check-day",
		Short: "Report whether a date is a trading day",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := state.config.Location()
			day := time.Now().In(loc)
			if date != "" {
				parsed, err := time.ParseInLocation("2006-01-02", date, loc)
				if err != nil {
					return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
				}
				day = parsed
			}

			oracle, err := calendar.New(state.config, state.logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			trading, reason := oracle.Explain(ctx, day)

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", day.Format("2006-01-02"), day.Weekday())
			if trading {
				fmt.Fprintln(cmd.OutOrStdout(), "result: ✅ trading day")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "result: ❌ closed (%s)\n", reason)
			if next, ok := oracle.NextTradingDay(ctx, day); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "next trading day: %s (%s)\n", next.Format("2006-01-02"), next.Weekday())
			}
			if exitCode {
				return &exitError{code: 2}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to check, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 2 when the date is not a trading day")
	return cmd
}
