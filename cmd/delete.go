package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete --identity <id>",
	Short: "Remove an identity from every store",
	Long: `Remove an identity's samples and gallery records and retrain the
model. Deleting the last identity empties the model entirely.`,
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().Int64("identity", 0, "Identity key to delete (required)")
	_ = deleteCmd.MarkFlagRequired("identity")
}

func runDelete(cmd *cobra.Command, args []string) error {
	identity := mustGetInt64(cmd, "identity")
	if identity <= 0 {
		return errors.New("--identity must be a positive number")
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Delete(ctx, identity)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted identity %d: %d sample(s), %d embedding record(s)\n",
		identity, stats.Samples, stats.Embeddings)
	fmt.Printf("Engine state: %s\n", eng.State())
	return nil
}
