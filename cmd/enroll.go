package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll --identity <id> <file|folder> [file|folder...]",
	Short: "Enroll a person from a batch of frames",
	Long: `Enroll a person into the gallery from image files or folders.

Each frame passes the quality gate before it counts; a batch where no
frame survives enrolls nothing. Accepted frames are persisted as
canonical samples, embedded when the face service is online, and the
classical model is retrained.

Example:
  facegate enroll --identity 42 /path/to/frames
  facegate enroll --identity 42 front.jpg left.jpg right.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int64("identity", 0, "Identity key to enroll under (required)")
	_ = enrollCmd.MarkFlagRequired("identity")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	identity := mustGetInt64(cmd, "identity")
	if identity <= 0 {
		return errors.New("--identity must be a positive number")
	}

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
	fmt.Printf("Enrolling identity %d from %d frame(s)\n", identity, len(frames))

	ctx := context.Background()
	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Enroll(ctx, identity, frames)
	if errors.Is(err, engine.ErrInsufficientQuality) {
		return fmt.Errorf("no frame passed the quality gate, nothing enrolled: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled identity %d: %d accepted, %d synthesized, %d samples total\n",
		res.Identity, res.Accepted, res.Synthesized, res.Total)
	if res.Embeddings > 0 {
		fmt.Printf("Stored %d embedding(s) in the gallery\n", res.Embeddings)
	} else {
		fmt.Println("No embeddings stored (face service offline or yielded nothing)")
	}
	return nil
}
