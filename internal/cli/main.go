package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "vidqa",
		Short:        "Answer questions about a video from its frames and captions",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			logging.Init(verbose)
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")
	root.PersistentFlags().String("log", "", "Write every model exchange to this JSON lines file")

	root.AddCommand(
		newExtractCmd(),
		newPrepareCmd(),
		newCaptionCmd(),
		newKeyframesCmd(),
		newAskCmd(),
		newEvalCmd(),
		newREPLCmd(),
		newServeCmd(),
		newCutCmd(),
		newDownsampleCmd(),
		newInfoCmd(),
	)
	return root
}
