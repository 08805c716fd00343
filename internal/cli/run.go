package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/pipeline"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/forPelevin/vidqa/internal/usecase"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type envOptions struct {
	offline   bool
	storePath string
	configure func(*pipeline.Config)
}

// openEnv builds the pipeline from environment settings and the shared flags.
func openEnv(cmd *cobra.Command, opts envOptions) (*pipeline.Env, error) {
	cfg := pipeline.FromEnv(os.LookupEnv)
	cfg.Offline = opts.offline
	cfg.StorePath = opts.storePath
	cfg.InteractionLog, _ = cmd.Flags().GetString("log")
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.InteractionMirror = logging.NewConsoleWriter(cmd.ErrOrStderr())
	}
	if opts.configure != nil {
		opts.configure(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return pipeline.Open(cfg)
}

func statInput(path string) error {
	if path == "" {
		return fmt.Errorf("config: input is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config: stat input: %w", err)
	}
	return nil
}

func loadCaptionsFlag(cmd *cobra.Command) ([]types.FrameCaption, error) {
	path, _ := cmd.Flags().GetString("captions")
	if err := statInput(path); err != nil {
		return nil, err
	}
	caps, err := usecase.LoadCaptions(path)
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		return nil, fmt.Errorf("no captions in %s", path)
	}
	return caps, nil
}

func newBar(cmd *cobra.Command, total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
