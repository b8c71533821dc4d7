package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the history database",
	Long: `List recent runs recorded by "taplogger convert --history".

The database is taken from --db, then TAPLOGGER_HISTORY, then the
historyDatabase setting of the config file.

Examples:
  taplogger history --db sqlite://.taplogger/history.db
  taplogger history --limit 20`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

var (
	historyDBFlag    string
	historyLimitFlag int
)

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("TAPLOGGER_HISTORY", ""), "History database (env: TAPLOGGER_HISTORY)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", getEnvInt("TAPLOGGER_HISTORY_LIMIT", 10), "Number of runs to show (env: TAPLOGGER_HISTORY_LIMIT)")
	historyCmd.Flags().StringVar(&configFlag, "config", getEnvString("TAPLOGGER_CONFIG", ""), "Path to config file (env: TAPLOGGER_CONFIG)")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	db := historyDBFlag
	if db == "" {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		db = cfg.HistoryDatabase
	}
	if db == "" {
		return &exitError{code: ExitUsageError, err: errors.New("no history database configured (use --db)")}
	}

	store, err := history.Open(db)
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}
	defer store.Close()

	runs, err := store.Recent(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tPASSED\tFAILED\tSKIPPED\tDURATION\tSOURCE")
	for _, r := range runs {
		status := green("pass")
		switch {
		case r.Aborted:
			status = yellow("aborted")
		case r.Failed > 0:
			status = red("fail")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), status,
			r.Passed, r.Failed, r.Skipped, r.Duration, r.Source)
	}
	return w.Flush()
}
