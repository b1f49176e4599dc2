package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/retz8/iris/internal/errors"
	"github.com/retz8/iris/internal/models"
)

var (
	analyzeLanguage    string
	analyzeStrategy    string
	analyzeFormat      string
	analyzeConcurrency int
	offlineScript      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Summarize source files into an intent and responsibility blocks",
	Long: `Analyze one or more source files.

Each file gets a one-line file intent and a few responsibility blocks. Results are
cached by content hash, so re-running on an unchanged file is free.

Examples:
  # Analyze a file with the configured provider
  iris analyze internal/server/handler.go

  # Force the adaptive path and print YAML
  iris analyze --strategy adaptive --format yaml app.py

  # Dry run against a canned script, no API key needed
  iris analyze --offline-script testdata/replies.yaml app.py`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeLanguage, "language", "l", "", "language of every file (default: from extension)")
	analyzeCmd.Flags().StringVarP(&analyzeStrategy, "strategy", "s", "auto", "auto, fast, adaptive or two_step")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "json", "output format: json or yaml")
	analyzeCmd.Flags().IntVarP(&analyzeConcurrency, "concurrency", "j", 4, "files analyzed in parallel")
	analyzeCmd.Flags().StringVar(&offlineScript, "offline-script", "", "replay replies from a YAML or JSON script instead of calling a provider")
}

// fileReport is one entry of the analyze output.
type fileReport struct {
	File    string                 `json:"file" yaml:"file"`
	Result  *models.AnalysisResult `json:"result,omitempty" yaml:"result,omitempty"`
	Failure *errors.Failure        `json:"failure,omitempty" yaml:"failure,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	strategy, err := models.ParseStrategy(analyzeStrategy)
	if err != nil {
		return err
	}
	if analyzeFormat != "json" && analyzeFormat != "yaml" {
		return fmt.Errorf("unknown format %q (use json or yaml)", analyzeFormat)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, offlineScript)
	if err != nil {
		return err
	}
	defer a.Close()

	reports := make([]fileReport, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, analyzeConcurrency))
	for i, path := range args {
		g.Go(func() error {
			reports[i] = analyzeFile(gctx, a, path, strategy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeReports(cmd.OutOrStdout(), reports); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if r.Failure != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(reports))
	}
	return nil
}

func analyzeFile(ctx context.Context, a *app, path string, strategy models.Strategy) fileReport {
	report := fileReport{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		f := errors.FailureOf(errors.InvalidRequestf("read %s: %v", path, err))
		report.Failure = &f
		return report
	}

	res, err := a.analyzer.Analyze(ctx, models.Request{
		Filename:   filepath.Base(path),
		Language:   analyzeLanguage,
		SourceCode: string(data),
		Strategy:   strategy,
	})
	if err != nil {
		logger.WithError(err).WithField("file", path).Warn("analysis failed")
		f := errors.FailureOf(err)
		report.Failure = &f
		return report
	}
	report.Result = res
	return report
}

func writeReports(w io.Writer, reports []fileReport) error {
	var out any = reports
	if len(reports) == 1 {
		out = reports[0]
	}

	if analyzeFormat == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
