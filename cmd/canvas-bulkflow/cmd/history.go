package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"canvas-bulkflow/internal/database"
	"canvas-bulkflow/internal/helpers"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded transfer outcomes",
	Long:  `Prints the local ledger of past download and upload outcomes, oldest first.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := globalConfig.LedgerPath
	if path == "" {
		path = "bulkflow.db"
	}
	ledger, err := database.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open ledger at %s: %w", path, err)
	}
	defer ledger.Close()

	entries, err := ledger.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No transfers recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tDIRECTION\tFILE ID\tNAME\tOUTCOME\tSIZE")
	for _, e := range entries {
		size := ""
		if e.Bytes > 0 {
			size = helpers.BytesToSize(uint64(e.Bytes))
		}
		when := time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04:05")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", when, e.Direction, e.FileID, e.Name, e.Outcome, size)
	}
	return tw.Flush()
}
