package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine state and corpus counters",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	st, err := eng.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("State:             %s\n", st.State)
	fmt.Printf("Identities:        %d\n", st.Identities)
	fmt.Printf("Samples:           %d\n", st.Samples)
	fmt.Printf("Embedding records: %d\n", st.EmbeddingRecords)
	fmt.Printf("Embedding online:  %t\n", st.EmbeddingOnline)
	if st.ActiveBackend != "" {
		fmt.Printf("Active backend:    %s\n", st.ActiveBackend)
	} else {
		fmt.Printf("Active backend:    none\n")
	}
	return nil
}
