package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainrouter/chainrouter/internal/decision"
	"github.com/chainrouter/chainrouter/internal/plugin"
)

func init() {
	simulateCmd.Flags().String("prompt", "", "prompt text to classify and decide against")
	simulateCmd.Flags().String("messages", "", "path to a JSON file containing a []plugin.Message array (optional)")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the decision engine read-only against on-disk state and print the outcome",
	RunE:  runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	messagesPath, _ := cmd.Flags().GetString("messages")

	var messages []plugin.Message
	if messagesPath != "" {
		data, err := os.ReadFile(messagesPath)
		if err != nil {
			return fmt.Errorf("read messages file: %w", err)
		}
		if err := json.Unmarshal(data, &messages); err != nil {
			return fmt.Errorf("parse messages file: %w", err)
		}
	}

	d, err := loadDeps()
	if err != nil {
		return err
	}

	result, err := decision.Decide(d.ledger, d.registry, d.failure, d.cfg.FailureThreshold, prompt, messages)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}

	fmt.Printf("Action:       %s\n", result.Action)
	fmt.Printf("Task:         %s\n", result.Task)
	if result.Action != decision.ActionAllExhausted {
		fmt.Printf("Provider:     %s\n", result.Provider)
		fmt.Printf("Model:        %s\n", result.Model)
	}
	if result.Action == decision.ActionAllow {
		fmt.Printf("Remaining:    %.4f USD\n", result.Remaining)
		fmt.Printf("Percent used: %.1f%%\n", result.PercentUsed)
	}
	if result.Reason != "" {
		fmt.Printf("Reason:       %s\n", result.Reason)
	}
	return nil
}
