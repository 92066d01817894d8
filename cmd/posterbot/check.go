package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"posterbot/internal/task/cronspec"
)

func newCronCmd() *cobra.Command {
	cron := &cobra.Command{Use: "cron", Short: "Cron expression tools"}
	var (
		n  int
		tz string
	)
	check := &cobra.Command{
		Use:   "check EXPR...",
		Short: "Validate a 5- or 6-field cron expression and print its next fire times",
		Example: `  posterbot cron check "0 10 * * 1"
  posterbot cron check 30 0 10 '*' '*' 1-5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := cronspec.Parse(joinArgs(args))
			if err != nil {
				return err
			}
			return printNext(cmd, rec, n, tz)
		},
	}
	check.Flags().IntVarP(&n, "next", "n", 5, "how many fire times to print")
	check.Flags().StringVar(&tz, "tz", "", "IANA timezone (default local)")
	cron.AddCommand(check)
	return cron
}

func newScheduleCmd() *cobra.Command {
	sched := &cobra.Command{Use: "schedule", Short: "Schedule tools"}
	var (
		n  int
		tz string
	)
	check := &cobra.Command{
		Use:   "check RAW",
		Short: "Parse a schedule the way /set_schedule does (cron, 90m, 02:30, seconds)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := cronspec.ParseSchedule(joinArgs(args))
			if err != nil {
				return err
			}
			return printNext(cmd, rec, n, tz)
		},
	}
	check.Flags().IntVarP(&n, "next", "n", 5, "how many fire times to print")
	check.Flags().StringVar(&tz, "tz", "", "IANA timezone (default local)")
	sched.AddCommand(check)
	return sched
}

func printNext(cmd *cobra.Command, rec cronspec.Recurrence, n int, tz string) error {
	loc := time.Local
	if tz = strings.TrimSpace(tz); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ok: %s\n", rec)
	t := time.Now().In(loc)
	for i := 0; i < n; i++ {
		next, err := rec.Next(t)
		if err != nil {
			return err
		}
		if next.IsZero() {
			break
		}
		fmt.Fprintf(out, "  %s\n", next.Format(time.RFC1123))
		t = next
	}
	return nil
}
