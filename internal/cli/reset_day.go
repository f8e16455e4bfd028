package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	resetDayCmd.Flags().Bool("yes", false, "confirm the destructive reset")
	rootCmd.AddCommand(resetDayCmd)
}

var resetDayCmd = &cobra.Command{
	Use:   "reset-day",
	Short: "Force a day rollover, discarding today's spend and switch history",
	RunE:  runResetDay,
}

func runResetDay(cmd *cobra.Command, args []string) error {
	confirmed, _ := cmd.Flags().GetBool("yes")
	if !confirmed {
		return fmt.Errorf("this discards today's recorded spend and switch history — pass --yes to confirm")
	}

	d, err := loadDeps()
	if err != nil {
		return err
	}
	if err := d.ledger.Reset(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	fmt.Println("Ledger reset for today.")
	return nil
}
