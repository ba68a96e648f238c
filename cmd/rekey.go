package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var rekeyCmd = &cobra.Command{
	Use:   "rekey --identity <id> --new-key <id>",
	Short: "Move an identity to a new key",
	Long: `Move every sample and embedding record from one identity key to
another, then retrain under the new labels. The vectors themselves do
not change.`,
	RunE: runRekey,
}

func init() {
	rootCmd.AddCommand(rekeyCmd)

	rekeyCmd.Flags().Int64("identity", 0, "Current identity key (required)")
	rekeyCmd.Flags().Int64("new-key", 0, "New identity key (required)")
	_ = rekeyCmd.MarkFlagRequired("identity")
	_ = rekeyCmd.MarkFlagRequired("new-key")
}

func runRekey(cmd *cobra.Command, args []string) error {
	identity := mustGetInt64(cmd, "identity")
	newKey := mustGetInt64(cmd, "new-key")
	if identity <= 0 || newKey <= 0 {
		return errors.New("--identity and --new-key must be positive numbers")
	}
	if identity == newKey {
		return errors.New("--new-key must differ from --identity")
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Rekey(ctx, identity, newKey)
	if err != nil {
		return err
	}

	fmt.Printf("Rekeyed identity %d -> %d: %d sample(s), %d embedding record(s)\n",
		identity, newKey, stats.Samples, stats.Embeddings)
	return nil
}
