package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/forPelevin/vidqa/internal/dataset"
	"github.com/forPelevin/vidqa/internal/domain/prompts"
	"github.com/forPelevin/vidqa/internal/pipeline"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/forPelevin/vidqa/internal/usecase"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer one question about a captioned video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			question, _ := cmd.Flags().GetString("question")
			choices, _ := cmd.Flags().GetStringArray("choice")
			strategyName, _ := cmd.Flags().GetString("strategy")
			k, _ := cmd.Flags().GetInt("k")
			maxIter, _ := cmd.Flags().GetInt("max-iterations")

			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("config: question is required")
			}
			if len(choices) == 1 {
				return fmt.Errorf("config: give at least two choices or none")
			}
			strategy, err := usecase.ParseStrategy(strategyName)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			caps, err := loadCaptionsFlag(cmd)
			if err != nil {
				return err
			}

			env, err := openEnv(cmd, envOptions{configure: func(c *pipeline.Config) {
				if maxIter > 0 {
					c.Usecase.MaxIterations = maxIter
				}
			}})
			if err != nil {
				return err
			}
			defer env.Close()

			var res types.Result
			if len(choices) == 0 {
				res, err = env.UC.AnswerOpen(cmd.Context(), question, caps, k)
			} else {
				q := types.Question{QID: "cli", Question: question, Choices: choices, Gold: -1}
				res, err = env.UC.Answer(cmd.Context(), strategy, q, caps, k)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("captions", "", "Captions JSON of the video")
	cmd.Flags().String("question", "", "Question text")
	cmd.Flags().StringArray("choice", nil, "Answer choice (repeat); none asks an open question")
	cmd.Flags().String("strategy", string(usecase.StrategyInteractive), "interactive, captions, enhanced or selector")
	cmd.Flags().Int("k", 5, "Key frames used for open questions and the enhanced and selector strategies")
	cmd.Flags().Int("max-iterations", 0, "Coordinator turn limit for the interactive strategy")
	return cmd
}

func newREPLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Ask questions about a captioned video interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategyName, _ := cmd.Flags().GetString("strategy")
			k, _ := cmd.Flags().GetInt("k")
			strategy, err := usecase.ParseStrategy(strategyName)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			caps, err := loadCaptionsFlag(cmd)
			if err != nil {
				return err
			}
			env, err := openEnv(cmd, envOptions{})
			if err != nil {
				return err
			}
			defer env.Close()

			s := replSession{uc: env.UC, caps: caps, k: k, strategy: strategy}
			return s.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("captions", "", "Captions JSON of the video")
	cmd.Flags().String("strategy", string(usecase.StrategyCaptions), "Strategy for multiple-choice questions")
	cmd.Flags().Int("k", 5, "Key frames used per answer")
	return cmd
}

type replSession struct {
	uc       usecase.Usecase
	caps     []types.FrameCaption
	k        int
	strategy usecase.Strategy
}

const replHelp = `Type a question, or "question? A) one B) two" for multiple choice.
Commands: timeline, help, quit`

func (s replSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Loaded %d captioned frames.\n%s\n", len(s.caps), replHelp)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "help":
			fmt.Fprintln(out, replHelp)
			continue
		case "timeline":
			for _, e := range usecase.Timeline(s.caps) {
				fmt.Fprintf(out, "[%7.1fs] %s\n", e.Timestamp, e.Summary)
			}
			continue
		}

		if q, ok := dataset.ParseInline(line); ok {
			res, err := s.uc.Answer(ctx, s.strategy, q, s.caps, s.k)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if res.AnswerIndex >= 0 {
				fmt.Fprintf(out, "Answer: %s. %s\n", prompts.Letter(res.AnswerIndex), q.Choices[res.AnswerIndex])
			} else {
				fmt.Fprintf(out, "Answer: %s\n", res.Answer)
			}
			continue
		}

		res, err := s.uc.AnswerOpen(ctx, line, s.caps, s.k)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, res.Answer)
		if len(res.SelectedFrames) > 0 {
			ts := make([]string, len(res.SelectedFrames))
			for i, f := range res.SelectedFrames {
				ts[i] = fmt.Sprintf("%.1fs", f.Timestamp)
			}
			fmt.Fprintf(out, "(frames at %s)\n", strings.Join(ts, ", "))
		}
	}
}
