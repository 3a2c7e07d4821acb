package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			history := appInstance.History()
			if history == nil {
				return errors.New("history is disabled; set history.backend to memory, sqlite, or postgres")
			}
			records, err := history.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tID\tQUERY\tFOUND\tERROR")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					rec.CreatedAt.Local().Format(time.DateTime), rec.ID, rec.Query, len(rec.URLs), rec.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of searches to list")
	return cmd
}
