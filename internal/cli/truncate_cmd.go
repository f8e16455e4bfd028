package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainrouter/chainrouter/internal/truncate"
)

func init() {
	truncateCmd.Flags().String("session", "", "path to the JSONL session log")
	truncateCmd.Flags().Int("max-tokens", 120_000, "token ceiling that triggers truncation")
	truncateCmd.Flags().Int("keep-recent", 20, "number of recent content entries to keep")
	truncateCmd.Flags().Bool("dry-run", false, "report what would happen without writing")
	_ = truncateCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(truncateCmd)
}

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Invoke the session truncator out-of-band",
	RunE:  runTruncate,
}

func runTruncate(cmd *cobra.Command, args []string) error {
	session, _ := cmd.Flags().GetString("session")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	keepRecent, _ := cmd.Flags().GetInt("keep-recent")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if dryRun {
		result, err := truncate.Preview(session, maxTokens, keepRecent)
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		printTruncateResult(result, true)
		return nil
	}

	result, err := truncate.Truncate(session, maxTokens, keepRecent, nil)
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	printTruncateResult(result, false)
	return nil
}

func printTruncateResult(result truncate.Result, dryRun bool) {
	verb := "Truncated"
	if dryRun {
		verb = "Would truncate"
	}
	if !result.Truncated {
		fmt.Println("No truncation needed.")
		return
	}
	fmt.Printf("%s: removed %d messages (estimate %d -> %d tokens)\n",
		verb, result.RemovedCount, result.EstimateBefore, result.EstimateAfter)
}
