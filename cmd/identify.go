package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <file|folder> [file|folder...]",
	Short: "Identify a person from a burst of frames",
	Long: `Run one identification attempt over a burst of frames.

Frames are quality-gated, matched individually and the votes are
aggregated into one decision. A no-match is a normal outcome, not an
error.

Example:
  facegate identify /path/to/burst
  facegate identify frame1.jpg frame2.jpg frame3.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	paths, err := collectFramePaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no image files found in the given paths")
	}

	frames, err := readFrames(paths)
	if err != nil {
		return err
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Identify(ctx, frames)
	if errors.Is(err, engine.ErrModelUnavailable) {
		return fmt.Errorf("no usable model, enroll someone first: %w", err)
	}
	if err != nil {
		return err
	}

	d := res.Decision
	fmt.Printf("Attempt %s (backend: %s)\n", res.AttemptID, res.Backend)
	fmt.Printf("  Frames processed: %d, votes for leader: %d (share %.2f)\n",
		d.Processed, d.Votes, d.Share)
	if !d.Found {
		fmt.Println("  Result: no match")
		return nil
	}
	if res.Name != "" {
		fmt.Printf("  Result: identity %d (%s), confidence %d%%\n", d.Identity, res.Name, d.Confidence)
	} else {
		fmt.Printf("  Result: identity %d, confidence %d%%\n", d.Identity, d.Confidence)
	}
	return nil
}
