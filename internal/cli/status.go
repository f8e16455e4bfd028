package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, failure, and switcher state for the provider chain",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := loadDeps()
	if err != nil {
		return err
	}

	doc, err := d.ledger.Load()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	mode := "cloud"
	if st, ok, err := d.switcher.Load(); err == nil && ok {
		mode = string(st.Mode)
	}

	fmt.Printf("Active provider:  %s\n", doc.ActiveProvider)
	fmt.Printf("Switcher mode:    %s\n", mode)
	fmt.Printf("Day:              %s\n", doc.Date)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSPENT USD\tMAX DAILY USD\tEXHAUSTED\tCONSEC FAILURES")
	for _, p := range d.registry.Enabled() {
		spent := doc.Providers[p.ID].SpentUSD
		exhausted, _ := d.ledger.Exhausted(p.ID)
		consecutive, _ := d.failure.ConsecutiveFailures(p.ID)
		fmt.Fprintf(w, "%s\t%.4f\t%.2f\t%t\t%d\n", p.ID, spent, p.MaxDailyUSD, exhausted, consecutive)
	}
	return w.Flush()
}
