package cli

import (
	"fmt"
	"path/filepath"

	"github.com/forPelevin/vidqa/internal/dataset"
	"github.com/forPelevin/vidqa/internal/pipeline"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/forPelevin/vidqa/internal/usecase"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <dataset.csv>",
		Short: "Answer a question set and report accuracy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			csvPath := args[0]
			strategyName, _ := cmd.Flags().GetString("strategy")
			every, _ := cmd.Flags().GetInt("every")
			k, _ := cmd.Flags().GetInt("k")
			outDir, _ := cmd.Flags().GetString("out")
			dbPath, _ := cmd.Flags().GetString("db")

			if err := statInput(csvPath); err != nil {
				return err
			}
			strategy, err := usecase.ParseStrategy(strategyName)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if every <= 0 {
				return fmt.Errorf("config: every must be > 0")
			}

			questions, err := dataset.LoadCSV(csvPath)
			if err != nil {
				return err
			}
			questions = dataset.Sample(questions, every)
			if len(questions) == 0 {
				return fmt.Errorf("no questions with choices in %s", csvPath)
			}
			caps, err := loadCaptionsFlag(cmd)
			if err != nil {
				return err
			}

			runDir := pipeline.RunDir(outDir, csvPath)
			if dbPath == "" {
				dbPath = filepath.Join(outDir, "vidqa.db")
			}
			env, err := openEnv(cmd, envOptions{storePath: dbPath})
			if err != nil {
				return err
			}
			defer env.Close()

			bar := newBar(cmd, len(questions), string(strategy))
			res, err := env.UC.Evaluate(cmd.Context(), usecase.EvalInput{
				Strategy:   strategy,
				Dataset:    filepath.Base(csvPath),
				Questions:  questions,
				Captions:   caps,
				K:          k,
				ReportPath: filepath.Join(runDir, "answers.txt"),
				OnResult:   func(i, _ int, _ types.Result) { _ = bar.Set(i + 1) },
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}
			if err := pipeline.WriteJSON(filepath.Join(runDir, "results.json"), res.Results); err != nil {
				return err
			}
			if err := pipeline.WriteJSON(filepath.Join(runDir, "summary.json"), res.Summary); err != nil {
				return err
			}

			s := res.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d correct (%.2f%%), %d errors\n", s.RunID, s.Correct, s.Graded, 100*s.Accuracy, s.Errors)
			fmt.Fprintf(cmd.OutOrStdout(), "outputs: %s\n", runDir)
			return nil
		},
	}
	cmd.Flags().String("captions", "", "Captions JSON of the video")
	cmd.Flags().String("strategy", string(usecase.StrategyInteractive), "interactive, captions, enhanced or selector")
	cmd.Flags().Int("every", 1, "Keep every nth question")
	cmd.Flags().Int("k", 3, "Key frames used by the enhanced and selector strategies")
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().String("db", "", "Result database (default <out>/vidqa.db)")
	return cmd
}
