package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Rebuild the model from the full sample corpus",
	Long: `Rebuild the classical model and the embedding index from every
persisted sample. Useful after tuning changes or when the artifact on
disk is suspected stale.`,
	RunE: runRetrain,
}

func init() {
	rootCmd.AddCommand(retrainCmd)
}

func runRetrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Retraining"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSpinnerType(14),
	)

	type result struct {
		samples int
		err     error
	}
	done := make(chan result, 1)
	go func() {
		n, err := eng.ForceRetrain(ctx)
		done <- result{samples: n, err: err}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			bar.Finish()
			fmt.Println()
			if res.err != nil {
				return fmt.Errorf("retraining: %w", res.err)
			}
			if res.samples == 0 {
				fmt.Println("Corpus is empty, model artifact removed")
				return nil
			}
			fmt.Printf("Retrained on %d sample(s), state: %s\n", res.samples, eng.State())
			return nil
		case <-ticker.C:
			bar.Add(1)
		}
	}
}
