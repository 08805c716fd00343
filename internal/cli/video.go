package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/forPelevin/vidqa/internal/domain/imaging"
	"github.com/forPelevin/vidqa/internal/pipeline"
	"github.com/forPelevin/vidqa/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/forPelevin/vidqa/internal/usecase"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <video>",
		Short: "Sample frames from a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			outDir, _ := cmd.Flags().GetString("out")
			framesDir, _ := cmd.Flags().GetString("frames")
			interval, _ := cmd.Flags().GetDuration("interval")
			factor, _ := cmd.Flags().GetInt("downsample")

			if err := statInput(input); err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("config: interval must be > 0")
			}
			if factor == 1 || factor < 0 {
				return fmt.Errorf("config: downsample factor must be 0 or >= 2")
			}
			if framesDir == "" {
				framesDir = filepath.Join(pipeline.RunDir(outDir, input), "frames")
			}

			env, err := openEnv(cmd, envOptions{offline: true})
			if err != nil {
				return err
			}
			defer env.Close()

			frames, err := env.UC.Extract(cmd.Context(), usecase.ExtractInput{
				Video:      input,
				FramesDir:  framesDir,
				Interval:   interval,
				Downsample: factor,
			})
			if err != nil {
				return err
			}
			if err := pipeline.WriteJSON(filepath.Join(filepath.Dir(framesDir), "frames.json"), frames); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "extracted %d frames into %s\n", len(frames), framesDir)
			return nil
		},
	}
	cmd.Flags().String("out", "out", "Output directory for a new run")
	cmd.Flags().String("frames", "", "Frames directory (existing frames are reused)")
	cmd.Flags().Duration("interval", time.Second, "Time between sampled frames")
	cmd.Flags().Int("downsample", 0, "Shrink newly extracted frames by this factor")
	return cmd
}

func newPrepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare <video>",
		Short: "Extract and caption frames of a video in one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			outDir, _ := cmd.Flags().GetString("out")
			runDir, _ := cmd.Flags().GetString("run-dir")
			interval, _ := cmd.Flags().GetDuration("interval")
			factor, _ := cmd.Flags().GetInt("downsample")
			if err := statInput(input); err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("config: interval must be > 0")
			}
			if factor == 1 || factor < 0 {
				return fmt.Errorf("config: downsample factor must be 0 or >= 2")
			}
			env, err := openEnv(cmd, envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			if runDir == "" {
				runDir = pipeline.RunDir(outDir, input)
			}
			bar := newBar(cmd, 0, "captioning")
			res, err := env.UC.Prepare(cmd.Context(), usecase.PrepareInput{
				Video:        input,
				FramesDir:    filepath.Join(runDir, "frames"),
				Interval:     interval,
				Downsample:   factor,
				CaptionsPath: filepath.Join(runDir, "captions.json"),
				Reuse:        true,
				Progress: func(done, total int) {
					bar.ChangeMax(total)
					_ = bar.Set(done)
				},
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}
			if err := pipeline.WriteJSON(filepath.Join(runDir, "frames.json"), res.Frames); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captioned %d frames: %s\n", len(res.Captions), filepath.Join(runDir, "captions.json"))
			return nil
		},
	}
	cmd.Flags().String("out", "out", "Output directory for a new run")
	cmd.Flags().String("run-dir", "", "Run directory to create or resume; its frames and captions.json are reused")
	cmd.Flags().Duration("interval", time.Second, "Time between sampled frames")
	cmd.Flags().Int("downsample", 0, "Shrink newly extracted frames by this factor")
	return cmd
}

func newKeyframesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyframes <frames-dir>",
		Short: "Pick representative frames by clustering or shot changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			method, _ := cmd.Flags().GetString("method")
			k, _ := cmd.Flags().GetInt("k")
			threshold, _ := cmd.Flags().GetFloat32("threshold")
			thumb, _ := cmd.Flags().GetInt("thumb")
			out, _ := cmd.Flags().GetString("output")

			if err := statInput(dir); err != nil {
				return err
			}
			m := usecase.KeyFrameMethod(method)
			if m != usecase.MethodKMeans && m != usecase.MethodChangePoint {
				return fmt.Errorf("config: method must be %s or %s", usecase.MethodKMeans, usecase.MethodChangePoint)
			}
			if out == "" {
				out = filepath.Join(dir, "representative_frames.json")
			}
			frames, err := ffmpeg.LoadFrames(dir)
			if err != nil {
				return err
			}

			bar := newBar(cmd, len(frames), "thumbnails")
			uc := usecase.New(usecase.Deps{}, usecase.DefaultConfig())
			kfs, err := uc.SelectKeyFrames(cmd.Context(), usecase.KeyFrameInput{
				Frames:    frames,
				Method:    m,
				K:         k,
				Threshold: threshold,
				ThumbSize: thumb,
				OutPath:   out,
				Progress:  func(done, _ int) { _ = bar.Set(done) },
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected %d of %d frames: %s\n", len(kfs), len(frames), out)
			return nil
		},
	}
	cmd.Flags().String("method", string(usecase.MethodKMeans), "kmeans or cossim")
	cmd.Flags().Int("k", 30, "Number of clusters for kmeans")
	cmd.Flags().Float32("threshold", 0.9, "Similarity below which cossim starts a new shot")
	cmd.Flags().Int("thumb", 32, "Thumbnail edge used as frame vector")
	cmd.Flags().String("output", "", "Output JSON (default <frames-dir>/representative_frames.json)")
	return cmd
}

func newCutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cut <video> <out>",
		Short: "Copy the first seconds of a video into a test segment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, _ := cmd.Flags().GetInt("seconds")
			if err := statInput(args[0]); err != nil {
				return err
			}
			if seconds <= 0 {
				return fmt.Errorf("config: seconds must be > 0")
			}
			env, err := openEnv(cmd, envOptions{offline: true})
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.UC.CutTestSegment(cmd.Context(), args[0], args[1], time.Duration(seconds)*time.Second); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().Int("seconds", 60, "Segment length")
	return cmd
}

func newDownsampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "downsample <frames-dir>",
		Short: "Shrink every frame image in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			factor, _ := cmd.Flags().GetInt("factor")
			if err := statInput(args[0]); err != nil {
				return err
			}
			if factor < 2 {
				return fmt.Errorf("config: factor must be >= 2")
			}
			n, err := imaging.DownsampleDir(args[0], factor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downsampled %d images\n", n)
			return nil
		},
	}
	cmd.Flags().Int("factor", 2, "Divide width and height by this factor")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <video>",
		Short: "Print stream information of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := statInput(args[0]); err != nil {
				return err
			}
			env, err := openEnv(cmd, envOptions{offline: true})
			if err != nil {
				return err
			}
			defer env.Close()

			info, err := env.Video.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				types.VideoInfo
				DurationSeconds float64 `json:"duration_seconds"`
			}{info, info.Duration.Seconds()})
		},
	}
}
