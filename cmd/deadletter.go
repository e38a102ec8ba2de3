package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadsync/internal/resilience"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect records whose contact could not be written",
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		importID, _ := cmd.Flags().GetString("import")
		errType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListFailures(ctx, resilience.DeadLetterFilter{
			ImportID:  importID,
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "deadletter list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No dead letters found.")
			return nil
		}
		formatDeadLetters(cmd.OutOrStdout(), entries)
		return nil
	},
}

func formatDeadLetters(out io.Writer, entries []resilience.DeadLetter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "IMPORT\tRECORD\tCONTACT\tTYPE\tSTEP\tCREATED\tERROR")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t----\t----\t-------\t-----")

	for _, e := range entries {
		msg := e.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(e.ImportID),
			e.RecordIndex,
			e.ContactID,
			e.ErrorType,
			e.FailedStep,
			e.CreatedAt.Format("2006-01-02 15:04"),
			msg,
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	deadletterListCmd.Flags().String("import", "", "filter by import id")
	deadletterListCmd.Flags().String("type", "", "filter by error type (transient, permanent)")
	deadletterListCmd.Flags().Int("limit", 50, "maximum entries to show")
	deadletterCmd.AddCommand(deadletterListCmd)
	rootCmd.AddCommand(deadletterCmd)
}
