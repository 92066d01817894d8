package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "hint:", h)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "posterbot",
		Short:         "Telegram bot that posts queued content to channels on a schedule.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCronCmd(), newScheduleCmd())
	return root
}

// joinArgs lets cron expressions be passed quoted or as separate fields.
func joinArgs(args []string) string {
	return strings.Join(strings.Fields(strings.Join(args, " ")), " ")
}
