package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(providersCmd)
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the enabled providers of the chain, in priority order",
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	d, err := loadDeps()
	if err != nil {
		return err
	}
	doc, err := d.ledger.Load()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tENABLED\tFREE\tDEFAULT MODEL\tMAX DAILY USD\tSPENT USD")
	for _, p := range d.registry.Enabled() {
		spent := doc.Providers[p.ID].SpentUSD
		fmt.Fprintf(w, "%s\t%d\t%t\t%t\t%s\t%.2f\t%.4f\n",
			p.ID, p.Priority, p.Enabled, p.Free(), p.Models["default"], p.MaxDailyUSD, spent)
	}
	return w.Flush()
}
