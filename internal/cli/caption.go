package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/vidqa/internal/pipeline"
	"github.com/forPelevin/vidqa/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vidqa/internal/usecase"
	"github.com/spf13/cobra"
)

func newCaptionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caption <frames-dir>",
		Short: "Caption every extracted frame with the vision model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			out, _ := cmd.Flags().GetString("output")
			promptFile, _ := cmd.Flags().GetString("prompt-file")
			maxEdge, _ := cmd.Flags().GetInt("max-edge")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			if err := statInput(dir); err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(filepath.Clean(dir)), "captions.json")
			}
			var prompt string
			if promptFile != "" {
				b, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("config: read prompt file: %w", err)
				}
				prompt = string(b)
			}

			frames, err := ffmpeg.LoadFrames(dir)
			if err != nil {
				return err
			}
			if len(frames) == 0 {
				return fmt.Errorf("no frames in %s", dir)
			}

			env, err := openEnv(cmd, envOptions{configure: func(c *pipeline.Config) {
				c.Usecase.ImageMaxEdge = maxEdge
				if concurrency > 0 {
					c.Usecase.CaptionConcurrency = concurrency
				}
			}})
			if err != nil {
				return err
			}
			defer env.Close()

			bar := newBar(cmd, len(frames), "captioning")
			caps, err := env.UC.CaptionFrames(cmd.Context(), frames, prompt, func(done, _ int) { _ = bar.Set(done) })
			_ = bar.Finish()
			if err != nil {
				return err
			}
			if err := usecase.SaveCaptions(out, caps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captioned %d frames: %s\n", len(caps), out)
			return nil
		},
	}
	cmd.Flags().String("output", "", "Captions JSON (default next to the frames directory)")
	cmd.Flags().String("prompt-file", "", "Replace the general caption prompt")
	cmd.Flags().Int("max-edge", 0, "Shrink images so the longest edge fits before upload")
	cmd.Flags().Int("concurrency", 0, "Frames captioned in parallel")
	return cmd
}
