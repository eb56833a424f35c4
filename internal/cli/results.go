package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/me/schedrt/internal/config"
	"github.com/me/schedrt/internal/logging"
	"github.com/me/schedrt/internal/store"
)

// newResultsCmd queries the result history database.
func newResultsCmd(cfg *config.RunnerConfig) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List stored execution results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == "" {
				return errors.New("results requires --db (or db in the config file)")
			}
			logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			st, err := store.NewSQLiteStore(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(context.Background()); err != nil {
				return err
			}

			if runID == "" {
				runs, err := st.ListRuns(context.Background())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
					return nil
				}
				runID = runs[0]
			}

			rows, err := st.ListResults(context.Background(), runID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintf(w, "run %s: %d results\n", runID, len(rows))
			fmt.Fprintln(w, "TASK\tOK\tTIME_NS\tENGINE\tMESSAGE")
			for _, row := range rows {
				fmt.Fprintf(w, "%d\t%t\t%d\t%s\t%s\n",
					row.TaskID, row.OK, row.Runtime.Nanoseconds(), row.Engine, row.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run id (default: the most recent run)")
	return cmd
}
