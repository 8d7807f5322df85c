package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gopherai-kbqa/internal/bootstrap"
	"gopherai-kbqa/internal/config"
	"gopherai-kbqa/internal/evaluation"
	"gopherai-kbqa/internal/pkg/logging"
	"gopherai-kbqa/internal/repository"
)

func evaluateCMD() *cobra.Command {
	var questionsPath string
	var reportDir string
	var topK int

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the evaluation question set through the query pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if questionsPath == "" {
				questionsPath = cfg.Evaluation.QuestionsPath
			}
			if reportDir == "" {
				reportDir = cfg.Evaluation.ReportDir
			}
			if topK <= 0 {
				topK = cfg.Retrieval.TopK
			}

			logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			ctx := cmd.Context()

			cases, err := evaluation.LoadCases(questionsPath)
			if err != nil {
				return err
			}

			app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			runner := evaluation.NewRunner(app.Pipeline, evaluation.NewEvaluator(), topK, logger)
			report, err := runner.Run(ctx, cases)
			if err != nil {
				return err
			}

			path, err := evaluation.SaveReport(report, reportDir)
			if err != nil {
				return err
			}
			logger.Info("evaluation report saved", "path", path, "run_id", report.RunID)

			if app.MySQL != nil {
				if err := repository.NewEvaluationRunRepository(app.MySQL).Create(ctx, report.Record(path)); err != nil {
					logger.Warn("store evaluation run failed", "error", err)
				}
			}

			printSummary(cmd.OutOrStdout(), report.Summary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&questionsPath, "questions", "q", "", "evaluation cases file (yaml or json)")
	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "directory for the JSON report")
	cmd.Flags().IntVar(&topK, "top-k", 0, "documents retrieved per question (0 = configured default)")
	return cmd
}

func printSummary(w io.Writer, s evaluation.Summary) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "Evaluation summary")
	fmt.Fprintf(w, "  queries:          %d main, %d edge, %d greeting, %d failed\n",
		s.TotalQueries, s.EdgeCaseQueries, s.GreetingQueries, s.FailedQueries)
	fmt.Fprintf(w, "  retrieval score:  %.3f\n", s.AvgRetrievalScore)
	fmt.Fprintf(w, "  faithfulness:     %.3f (sd %.3f)\n", s.AvgFaithfulness, s.Variance.FaithfulnessStdDev)
	fmt.Fprintf(w, "  relevance:        %.3f (sd %.3f)\n", s.AvgRelevance, s.Variance.RelevanceStdDev)
	fmt.Fprintf(w, "  completeness:     %.3f (sd %.3f)\n", s.AvgCompleteness, s.Variance.CompletenessStdDev)
	if s.EdgeCaseHandling != nil {
		fmt.Fprintf(w, "  edge cases:       %.0f%% declined\n", *s.EdgeCaseHandling*100)
	}
	if s.GreetingHandling != nil {
		fmt.Fprintf(w, "  greetings:        %.0f%% handled\n", *s.GreetingHandling*100)
	}
	fmt.Fprintf(w, "  overall:          %s\n", scoreColor(s.AvgOverallScore).Sprintf("%.3f", s.AvgOverallScore))
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 0.8:
		return color.New(color.FgGreen, color.Bold)
	case score >= 0.6:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
