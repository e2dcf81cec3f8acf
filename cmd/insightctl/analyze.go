package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"research-backend/internal/analysis"
	"research-backend/internal/documents"
)

var (
	analyzeReanalyze bool
	analyzeTitle     string
	analyzeAbstract  string
	analyzeTextFile  string
	pendingLimit     int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [document-id]",
	Short: "Classify one document and extract its insights",
	Long: "Run the analysis pipeline synchronously for a stored document. Without an id, " +
		"a document is created first from --title, --abstract and --text-file.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var analyzePendingCmd = &cobra.Command{
	Use:   "analyze-pending",
	Short: "Analyze every pending document",
	Args:  cobra.NoArgs,
	RunE:  runAnalyzePending,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeReanalyze, "reanalyze", false, "Run again even if the document is completed")
	analyzeCmd.Flags().StringVar(&analyzeTitle, "title", "", "Title of a new document")
	analyzeCmd.Flags().StringVar(&analyzeAbstract, "abstract", "", "Abstract of a new document")
	analyzeCmd.Flags().StringVar(&analyzeTextFile, "text-file", "", "Plain-text full text of a new document")
	analyzePendingCmd.Flags().IntVar(&pendingLimit, "limit", 0, "Maximum documents to analyze (0 means all)")
	rootCmd.AddCommand(analyzeCmd, analyzePendingCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	var documentID string
	if len(args) == 1 {
		documentID = args[0]
	} else {
		in := documents.NewDocument{Title: analyzeTitle, Abstract: analyzeAbstract}
		if analyzeTextFile != "" {
			data, err := os.ReadFile(analyzeTextFile)
			if err != nil {
				return fmt.Errorf("read text file: %w", err)
			}
			in.FullText = string(data)
		}
		if strings.TrimSpace(in.Title) == "" {
			return errors.New("a document id or --title is required")
		}
		doc, err := app.DocumentsService.Create(ctx, in)
		if err != nil {
			return err
		}
		documentID = doc.ID
	}

	res, err := app.AnalysisService.Analyze(ctx, documentID, analysis.Options{Reanalyze: analyzeReanalyze})
	if err != nil && res.FailureCode == "" {
		return err
	}
	if werr := writeJSON(cmd.OutOrStdout(), analysis.ToResponse(res)); werr != nil {
		return werr
	}
	return err
}

func runAnalyzePending(cmd *cobra.Command, args []string) error {
	if pendingLimit < 0 {
		return errors.New("--limit must not be negative")
	}
	ctx := cmd.Context()
	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.AnalysisService.AnalyzePending(ctx, pendingLimit)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), summary)
}
